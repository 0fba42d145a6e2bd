package mapping

import (
	"fmt"
	"sort"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
)

// Session is the editable mapping of one upload. Headers edited by hand are
// remembered and never overwritten by later suggestions.
type Session struct {
	docType domain.DocumentType
	mapping Mapping
	manual  map[string]bool
}

func NewSession(docType domain.DocumentType, current Mapping, manualHeaders []string) *Session {
	s := &Session{
		docType: docType,
		mapping: current.Clone(),
		manual:  make(map[string]bool, len(manualHeaders)),
	}
	for _, h := range manualHeaders {
		s.manual[h] = true
	}
	return s
}

// Set records a manual edit. Any other header holding the same target loses
// it: an automatic one becomes unset, a manual one becomes ignored.
func (s *Session) Set(header, target string) error {
	if header == "" {
		return domain.WrapError(domain.ErrInvalidInput, "set mapping", fmt.Errorf("header is required"))
	}
	if target != Ignore {
		if _, ok := schema.Lookup(s.docType, target); !ok {
			return domain.WrapError(domain.ErrInvalidInput, "set mapping", fmt.Errorf("%s has no field %q", s.docType, target))
		}
		if other, ok := s.mapping.Assigned(target); ok && other != header {
			if s.manual[other] {
				s.mapping[other] = Ignore
			} else {
				delete(s.mapping, other)
			}
		}
	}
	s.mapping[header] = target
	s.manual[header] = true
	return nil
}

// Suggest merges automatic suggestions into headers that were not edited by
// hand. Suggestions for targets already held by a manual header are dropped.
// It returns the number of headers that changed.
func (s *Session) Suggest(suggested Mapping) int {
	held := make(map[string]bool)
	for header := range s.manual {
		if t := s.mapping[header]; t != Ignore {
			held[t] = true
		}
	}

	changed := 0
	headers := make([]string, 0, len(suggested))
	for h := range suggested {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, header := range headers {
		target := suggested[header]
		if s.manual[header] || held[target] || target == Ignore {
			continue
		}
		if _, ok := schema.Lookup(s.docType, target); !ok {
			continue
		}
		if other, ok := s.mapping.Assigned(target); ok && other != header {
			continue
		}
		if s.mapping[header] != target {
			s.mapping[header] = target
			changed++
		}
	}
	return changed
}

func (s *Session) Mapping() Mapping {
	return s.mapping.Clone()
}

// ManualHeaders returns the hand-edited headers, sorted.
func (s *Session) ManualHeaders() []string {
	out := make([]string, 0, len(s.manual))
	for h := range s.manual {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
