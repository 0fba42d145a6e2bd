package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// BatchOperations covers what happens to a batch after the queue saved it:
// confirmation, review of rejected rows and promotion.
type BatchOperations struct {
	store ports.BatchStore
}

var _ ports.BatchOperator = (*BatchOperations)(nil)

func NewBatchOperations(store ports.BatchStore) *BatchOperations {
	return &BatchOperations{store: store}
}

func (b *BatchOperations) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, err := b.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

func (b *BatchOperations) ConfirmBatch(ctx context.Context, batchID, parserID string) error {
	if parserID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "confirm batch", errors.New("parser id is required"))
	}
	if err := b.store.ConfirmBatch(ctx, batchID, parserID); err != nil {
		return fmt.Errorf("confirm batch: %w", err)
	}
	slog.Info("batch_confirmed", "batch_id", batchID, "parser_id", parserID)
	return nil
}

func (b *BatchOperations) ValidateBatch(ctx context.Context, batchID string) (*domain.IngestResult, error) {
	result, err := b.store.ValidateBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("validate batch: %w", err)
	}
	accepted, rejected := result.Counts()
	slog.Info("batch_validated", "batch_id", batchID, "valid", accepted, "invalid", rejected)
	return result, nil
}

func (b *BatchOperations) ListItems(ctx context.Context, batchID string, status domain.ItemValidation) ([]domain.Item, error) {
	items, err := b.store.ListItems(ctx, batchID, status)
	if err != nil {
		return nil, fmt.Errorf("list batch items: %w", err)
	}
	return items, nil
}

func (b *BatchOperations) PatchItem(ctx context.Context, batchID, itemID string, normalized map[string]any) (*domain.Item, error) {
	if len(normalized) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "patch item", errors.New("no fields to change"))
	}
	item, err := b.store.PatchItem(ctx, batchID, itemID, normalized)
	if err != nil {
		return nil, fmt.Errorf("patch item: %w", err)
	}
	return item, nil
}

// AttachPhoto attaches to the batch itself when itemID is empty.
func (b *BatchOperations) AttachPhoto(ctx context.Context, batchID, itemID, filename string, body io.Reader) error {
	var err error
	if itemID == "" {
		err = b.store.AttachBatchPhoto(ctx, batchID, filename, body)
	} else {
		err = b.store.AttachItemPhoto(ctx, batchID, itemID, filename, body)
	}
	if err != nil {
		return fmt.Errorf("attach photo: %w", err)
	}
	return nil
}

// PromoteBatch refuses batches that were already promoted, still hold
// invalid items or wait for parser confirmation.
func (b *BatchOperations) PromoteBatch(ctx context.Context, batchID string, opts domain.PromoteOptions) (*domain.PromoteResult, error) {
	batch, err := b.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	switch {
	case batch.Status == domain.BatchPromoted:
		return nil, domain.WrapError(domain.ErrPromotionConflict, "promote batch", fmt.Errorf("batch %s is already promoted", batchID))
	case batch.Status.Terminal():
		return nil, domain.WrapError(domain.ErrInvalidTransition, "promote batch", fmt.Errorf("batch %s is %s", batchID, batch.Status))
	case batch.InvalidItems > 0:
		return nil, domain.WrapError(domain.ErrValidation, "promote batch", fmt.Errorf("batch %s has %d invalid items", batchID, batch.InvalidItems))
	}
	if batch.RequiresConfirmation {
		status, err := b.store.ConfirmationStatus(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("read confirmation status: %w", err)
		}
		if status.RequiresConfirmation && !status.Confirmed {
			return nil, domain.WrapError(domain.ErrInvalidInput, "promote batch", fmt.Errorf("batch %s waits for parser confirmation", batchID))
		}
	}

	result, err := b.store.PromoteBatch(ctx, batchID, opts)
	if err != nil {
		return nil, fmt.Errorf("promote batch: %w", err)
	}
	slog.Info("batch_promoted",
		"batch_id", batchID,
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (b *BatchOperations) ErrorsReport(ctx context.Context, batchID string) ([]byte, error) {
	report, err := b.store.ErrorsReport(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("errors report: %w", err)
	}
	return report, nil
}
