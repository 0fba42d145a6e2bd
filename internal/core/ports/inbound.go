package ports

import (
	"context"
	"io"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// IntakeQueue is the inbound contract of the local queue orchestrator.
type IntakeQueue interface {
	Enqueue(ctx context.Context, files []domain.FileSource) ([]domain.UploadItem, error)
	List() []domain.UploadItem
	Get(id string) (domain.UploadItem, bool)
	Remove(ctx context.Context, id string) error
	Save(ctx context.Context, id string) error
	SetMapping(ctx context.Context, id, header, target string) error
	SetDocumentType(ctx context.Context, id string, docType domain.DocumentType, parserID string) error
}

// BatchOperator exposes post-save batch operations to the driving adapters.
type BatchOperator interface {
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)
	ConfirmBatch(ctx context.Context, batchID, parserID string) error
	ValidateBatch(ctx context.Context, batchID string) (*domain.IngestResult, error)
	ListItems(ctx context.Context, batchID string, status domain.ItemValidation) ([]domain.Item, error)
	PatchItem(ctx context.Context, batchID, itemID string, normalized map[string]any) (*domain.Item, error)
	AttachPhoto(ctx context.Context, batchID, itemID, filename string, body io.Reader) error
	PromoteBatch(ctx context.Context, batchID string, opts domain.PromoteOptions) (*domain.PromoteResult, error)
	ErrorsReport(ctx context.Context, batchID string) ([]byte, error)
}
