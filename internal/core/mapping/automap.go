// Package mapping builds and applies header to canonical field mappings.
package mapping

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
)

// Ignore is the target of a header the user explicitly excluded.
const Ignore = ""

// Mapping maps source headers to canonical field names. A header mapped to
// Ignore was excluded on purpose; an absent header is simply unset.
type Mapping map[string]string

func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Assigned returns the header currently mapped to target.
func (m Mapping) Assigned(target string) (string, bool) {
	if target == Ignore {
		return "", false
	}
	for header, t := range m {
		if t == target {
			return header, true
		}
	}
	return "", false
}

const (
	fuzzyMinRunes    = 5
	fuzzyMaxDistance = 1
	containMinRunes  = 3
)

type candidate struct {
	target   string
	spelling string
	score    int
}

// AutoMap suggests a target for each header. Exact folded matches against the
// alias table are taken first; remaining headers are matched fuzzily by edit
// distance or by containing a known spelling as whole tokens. Each target is
// assigned to at most one header and unmatched headers are left unset.
func AutoMap(headers []string, aliases *schema.AliasTable, docType domain.DocumentType) Mapping {
	if aliases == nil {
		aliases = schema.DefaultAliases()
	}
	out := make(Mapping)
	used := make(map[string]bool)

	var pending []string
	for _, h := range headers {
		if _, done := out[h]; done {
			continue
		}
		target, ok := aliases.Resolve(docType, h)
		if !ok || used[target] {
			pending = append(pending, h)
			continue
		}
		out[h] = target
		used[target] = true
	}

	spellings := aliases.Spellings(docType)
	for _, h := range pending {
		if _, done := out[h]; done {
			continue
		}
		folded := schema.Fold(h)
		if folded == "" {
			continue
		}
		best, ok := bestCandidate(folded, spellings, aliases, docType, used)
		if !ok {
			continue
		}
		out[h] = best.target
		used[best.target] = true
	}
	return out
}

func bestCandidate(folded string, spellings []string, aliases *schema.AliasTable, docType domain.DocumentType, used map[string]bool) (candidate, bool) {
	var found []candidate
	for _, s := range spellings {
		target := aliases.FieldFor(docType, s)
		if target == "" || used[target] {
			continue
		}
		if score, ok := fuzzyScore(folded, s); ok {
			found = append(found, candidate{target: target, spelling: s, score: score})
		}
	}
	if len(found) == 0 {
		return candidate{}, false
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].score != found[j].score {
			return found[i].score < found[j].score
		}
		if len(found[i].spelling) != len(found[j].spelling) {
			return len(found[i].spelling) > len(found[j].spelling)
		}
		return found[i].spelling < found[j].spelling
	})
	return found[0], true
}

// fuzzyScore ranks a near miss: 1 for a one-edit typo, 2 for token containment.
func fuzzyScore(header, spelling string) (int, bool) {
	if utf8.RuneCountInString(header) >= fuzzyMinRunes && utf8.RuneCountInString(spelling) >= fuzzyMinRunes {
		if levenshtein.Distance(header, spelling, nil) <= fuzzyMaxDistance {
			return 1, true
		}
	}
	if utf8.RuneCountInString(spelling) >= containMinRunes && containsTokens(header, spelling) {
		return 2, true
	}
	return 0, false
}

func containsTokens(header, spelling string) bool {
	h := strings.Split(header, "_")
	s := strings.Split(spelling, "_")
	if len(s) >= len(h) {
		return false
	}
	for i := 0; i+len(s) <= len(h); i++ {
		match := true
		for j := range s {
			if h[i+j] != s[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
