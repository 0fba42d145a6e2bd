package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/mapping"
	"github.com/kirillkom/intake-pipeline/internal/core/normalize"
)

// Save stores a ready item as a new batch. A failed save may already have
// created part of the batch on the server, so it is never retried: the item
// ends in error and the file has to be enqueued again. A chunked item parked
// by a failed classification is uploaded here.
func (o *Orchestrator) Save(ctx context.Context, id string) error {
	o.mu.Lock()
	item, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return domain.WrapError(domain.ErrNotFound, "save item", fmt.Errorf("item %s", id))
	}
	status, docType := item.Status, item.DocumentType
	missingFile := item.Chunked && item.File == nil
	o.mu.Unlock()

	if status != domain.StatusReady {
		return domain.WrapError(domain.ErrInvalidTransition, "save item", fmt.Errorf("item %s is %s", id, status))
	}
	if !docType.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "save item", errors.New("select a document type first"))
	}
	if missingFile {
		return domain.WrapError(domain.ErrInvalidInput, "save item", errors.New("file is no longer available, add it again"))
	}
	return o.saveItem(ctx, id, true)
}

// saveItem runs ready -> saving -> {saved|duplicate|error}. confirm reports
// whether the caller is an operator, whose explicit save also locks in the
// parser when the server asks for confirmation.
func (o *Orchestrator) saveItem(ctx context.Context, id string, confirm bool) error {
	item, ok, err := o.transition(ctx, id, domain.StatusSaving, func(it *domain.UploadItem) {
		it.Error = ""
		it.ErrorKind = domain.ErrorKindNone
		it.Progress = "saving"
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	started := o.now()
	var (
		batch     *domain.Batch
		result    *domain.IngestResult
		mappingID = item.MappingID
	)
	if item.Chunked {
		batch, mappingID, err = o.storeUpload(ctx, item, item.DocumentType, item.ParserID, confirm)
	} else {
		batch, result, err = o.store(ctx, item, confirm)
	}
	o.observer.SaveFinished(o.now().Sub(started), err)

	if err != nil {
		to := domain.StatusError
		cause := domain.WrapError(domain.ErrSave, "save item", err)
		if domain.IsKind(err, domain.ErrDuplicate) {
			to = domain.StatusDuplicate
			cause = err
		}
		o.transition(ctx, id, to, func(it *domain.UploadItem) {
			it.Error = cause.Error()
			if to == domain.StatusError {
				it.ErrorKind = domain.KindOf(cause)
			}
			if batch != nil {
				it.BatchID = batch.ID
			}
			it.Progress = ""
		})
		return cause
	}

	if item.Chunked {
		o.transition(ctx, id, domain.StatusSaved, func(it *domain.UploadItem) {
			it.BatchID = batch.ID
			it.MappingID = mappingID
			it.RequiresConfirmation = batch.RequiresConfirmation
			it.Progress = uploadedProgress(batch)
		})
		return nil
	}

	accepted, rejected := result.Counts()
	o.templatesUsed(mappingID)
	o.transition(ctx, id, domain.StatusSaved, func(it *domain.UploadItem) {
		it.BatchID = batch.ID
		it.RequiresConfirmation = false
		it.Progress = fmt.Sprintf("%d accepted, %d rejected", accepted, rejected)
	})
	return nil
}

func (o *Orchestrator) store(ctx context.Context, item domain.UploadItem, confirm bool) (*domain.Batch, *domain.IngestResult, error) {
	rows, err := o.canonicalRows(item)
	if err != nil {
		return nil, nil, err
	}

	meta := &domain.ClassificationMetadata{ParserID: item.ParserID, Confidence: item.Confidence}
	batch, err := o.batches.CreateBatch(ctx, fmt.Sprintf("%s:%s", o.cfg.Origin, item.Name), item.DocumentType, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("create batch: %w", err)
	}
	if batch.RequiresConfirmation && confirm && item.ParserID != "" {
		if err := o.batches.ConfirmBatch(ctx, batch.ID, item.ParserID); err != nil {
			return batch, nil, fmt.Errorf("confirm batch: %w", err)
		}
	}

	result, err := o.batches.IngestBatch(ctx, batch.ID, rows, item.MappingID)
	if err != nil {
		return batch, nil, fmt.Errorf("ingest batch: %w", err)
	}
	return batch, result, nil
}

// canonicalRows applies the item mapping and normalizes every row for the
// item's document type. Each ingested row carries its untouched source row.
func (o *Orchestrator) canonicalRows(item domain.UploadItem) ([]domain.IngestRow, error) {
	n, err := normalize.For(item.DocumentType, o.aliases)
	if err != nil {
		return nil, err
	}
	m := mapping.Mapping(item.Mapping)
	mapped := mapping.DropIgnored(mapping.ApplyMapping(item.Rows, m), m)

	normalized := normalize.NormalizeRows(n, mapped)
	if len(normalized) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "normalize rows", errors.New("every row is empty"))
	}
	out := make([]domain.IngestRow, 0, len(normalized))
	for _, row := range normalized {
		ingest := row.IngestRow()
		ingest.Raw = item.Rows[row.Source]
		out = append(out, ingest)
	}
	return out, nil
}
