package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/mapping"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
)

// SetMapping records a manual mapping edit on a ready item. Later suggestions
// never overwrite it.
func (o *Orchestrator) SetMapping(ctx context.Context, id, header, target string) error {
	_, err := o.update(ctx, id, func(it *domain.UploadItem) error {
		if err := requireReady(it); err != nil {
			return err
		}
		if !it.DocumentType.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "set mapping", errors.New("select a document type first"))
		}
		if !slices.Contains(it.Headers, header) {
			return domain.WrapError(domain.ErrInvalidInput, "set mapping", fmt.Errorf("unknown header %q", header))
		}
		session := mapping.NewSession(it.DocumentType, it.Mapping, it.ManualHeaders)
		if err := session.Set(header, target); err != nil {
			return err
		}
		it.Mapping = session.Mapping()
		it.ManualHeaders = session.ManualHeaders()
		return nil
	})
	return err
}

// SetDocumentType is the manual override of the classifier and the way out of
// a failed classification. Manual mapping edits that still fit the new type
// are kept; the rest of the mapping is suggested again.
func (o *Orchestrator) SetDocumentType(ctx context.Context, id string, docType domain.DocumentType, parserID string) error {
	if !docType.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "set document type", fmt.Errorf("unknown document type %q", docType))
	}
	current, ok := o.Get(id)
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "set document type", fmt.Errorf("item %s", id))
	}
	if err := requireReady(&current); err != nil {
		return err
	}
	var suggested mapping.Mapping
	if len(current.Headers) > 0 {
		suggested = o.suggestMapping(ctx, current.Headers, docType, nil, nil)
	}

	_, err := o.update(ctx, id, func(it *domain.UploadItem) error {
		if err := requireReady(it); err != nil {
			return err
		}
		kept := make(mapping.Mapping)
		var manual []string
		for _, h := range it.ManualHeaders {
			target := it.Mapping[h]
			if _, valid := schema.Lookup(docType, target); valid || target == mapping.Ignore {
				kept[h] = target
				manual = append(manual, h)
			}
		}
		session := mapping.NewSession(docType, kept, manual)
		session.Suggest(suggested)

		if it.DocumentType != docType {
			it.ParserID = ""
		}
		if parserID != "" {
			it.ParserID = parserID
		}
		it.DocumentType = docType
		it.Mapping = session.Mapping()
		it.ManualHeaders = session.ManualHeaders()
		it.RequiresConfirmation = false
		it.Error = ""
		it.ErrorKind = domain.ErrorKindNone
		return nil
	})
	return err
}

func requireReady(it *domain.UploadItem) error {
	if it.Status != domain.StatusReady {
		return domain.WrapError(domain.ErrInvalidTransition, "edit item", fmt.Errorf("item %s is %s", it.ID, it.Status))
	}
	return nil
}
