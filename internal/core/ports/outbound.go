package ports

import (
	"context"
	"io"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// ClassificationStrategy is one way of classifying a file. Strategies are tried
// in order until one succeeds.
type ClassificationStrategy interface {
	Name() string
	Classify(ctx context.Context, file domain.FileSource) (*domain.ClassificationResult, error)
}

// FileClassifier is the composed classification capability used by the queue.
type FileClassifier interface {
	Classify(ctx context.Context, file domain.FileSource) (*domain.ClassificationResult, error)
}

// MappingCatalog serves saved mapping templates and server-side suggestions.
type MappingCatalog interface {
	ListMappings(ctx context.Context) ([]domain.ColumnMapping, error)
	SuggestMapping(ctx context.Context, headers []string, docType domain.DocumentType) (map[string]string, error)
}

type InitUploadResponse struct {
	UploadID string `json:"upload_id"`
	PartSize int64  `json:"part_size"`
}

type PartResponse struct {
	OK    bool  `json:"ok"`
	Bytes int64 `json:"bytes"`
}

type CompleteUploadResponse struct {
	FileKey string `json:"file_key"`
	Bytes   int64  `json:"bytes"`
}

// ChunkUploadAPI is the server side of the chunked transfer protocol.
type ChunkUploadAPI interface {
	InitUpload(ctx context.Context, filename, contentType string, size, desiredPartSize int64) (*InitUploadResponse, error)
	UploadPart(ctx context.Context, uploadID string, partNumber int, data []byte) (*PartResponse, error)
	CompleteUpload(ctx context.Context, uploadID string, expectedParts int, expectedSize int64) (*CompleteUploadResponse, error)
}

// OCRAPI submits documents for extraction and reads job state.
type OCRAPI interface {
	SubmitOCR(ctx context.Context, file domain.FileSource) (string, error)
	GetOCRJob(ctx context.Context, jobID string) (*domain.OCRJob, error)
}

type FromUploadRequest struct {
	FileKey    string              `json:"file_key"`
	SourceType domain.DocumentType `json:"source_type"`
	MappingID  string              `json:"mapping_id,omitempty"`
	ParserID   string              `json:"parser_id,omitempty"`
}

// BatchStore is the remote batch/item lifecycle.
type BatchStore interface {
	CreateBatch(ctx context.Context, origin string, docType domain.DocumentType, meta *domain.ClassificationMetadata) (*domain.Batch, error)
	CreateBatchFromUpload(ctx context.Context, req FromUploadRequest) (*domain.Batch, error)
	IngestBatch(ctx context.Context, batchID string, rows []domain.IngestRow, mappingID string) (*domain.IngestResult, error)
	ValidateBatch(ctx context.Context, batchID string) (*domain.IngestResult, error)
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)
	ConfirmBatch(ctx context.Context, batchID, parserID string) error
	ConfirmationStatus(ctx context.Context, batchID string) (*domain.ConfirmationStatus, error)
	ListItems(ctx context.Context, batchID string, status domain.ItemValidation) ([]domain.Item, error)
	PatchItem(ctx context.Context, batchID, itemID string, normalized map[string]any) (*domain.Item, error)
	ErrorsReport(ctx context.Context, batchID string) ([]byte, error)
	AttachBatchPhoto(ctx context.Context, batchID, filename string, body io.Reader) error
	AttachItemPhoto(ctx context.Context, batchID, itemID, filename string, body io.Reader) error
	PromoteBatch(ctx context.Context, batchID string, opts domain.PromoteOptions) (*domain.PromoteResult, error)
}

// SnapshotStore persists the metadata-only queue snapshot. Only the
// orchestrator writes to it.
type SnapshotStore interface {
	Load(ctx context.Context) ([]domain.UploadItem, error)
	Put(ctx context.Context, item domain.UploadItem) error
	Delete(ctx context.Context, id string) error
}

// RowParser turns a small delimited or spreadsheet file into headers and rows.
type RowParser interface {
	Parse(ctx context.Context, file domain.FileSource, kind domain.FileKind) (headers []string, rows []map[string]string, err error)
}

// DocumentInspector reads cheap local facts about a file before it is sent
// anywhere: XML flavor sniffing and PDF page counts.
type DocumentInspector interface {
	SniffXML(file domain.FileSource) (domain.DocumentType, string, error)
	PageCount(file domain.FileSource) (int, error)
}
