package domain

import (
	"fmt"
	"time"
)

type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusReady      ItemStatus = "ready"
	StatusSaving     ItemStatus = "saving"
	StatusSaved      ItemStatus = "saved"
	StatusDuplicate  ItemStatus = "duplicate"
	StatusError      ItemStatus = "error"
)

var transitions = map[ItemStatus][]ItemStatus{
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessing, StatusReady, StatusSaved, StatusError},
	StatusReady:      {StatusSaving},
	StatusSaving:     {StatusSaved, StatusDuplicate, StatusError},
}

// CanTransition reports whether an item may move from one status to another.
// processing -> processing is the OCR re-poll loop.
func CanTransition(from, to ItemStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Resting reports whether a persisted item in this status can be restored after
// a reload.
func (s ItemStatus) Resting() bool {
	switch s {
	case StatusPending, StatusReady, StatusError:
		return true
	default:
		return false
	}
}

func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusSaved, StatusDuplicate, StatusError:
		return true
	default:
		return false
	}
}

// UploadItem tracks one file through the intake pipeline. File is never
// serialized; a restored item is a status view only.
type UploadItem struct {
	ID           string     `json:"id"`
	File         FileSource `json:"-"`
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	DeclaredType string     `json:"declared_type,omitempty"`

	Status    ItemStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Progress  string     `json:"progress,omitempty"`

	Headers []string            `json:"headers,omitempty"`
	Rows    []map[string]string `json:"rows,omitempty"`

	DocumentType         DocumentType      `json:"document_type,omitempty"`
	ParserID             string            `json:"parser_id,omitempty"`
	Confidence           float64           `json:"confidence,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
	Mapping              map[string]string `json:"mapping,omitempty"`
	ManualHeaders        []string          `json:"manual_headers,omitempty"`
	MappingID            string            `json:"mapping_id,omitempty"`

	// Chunked items reach the server through the chunk transfer protocol
	// rather than as inline rows.
	Chunked bool `json:"chunked,omitempty"`

	OCRJobID     string     `json:"ocr_job_id,omitempty"`
	OCRAttempts  int        `json:"ocr_attempts,omitempty"`
	OCRStartedAt *time.Time `json:"ocr_started_at,omitempty"`
	BatchID      string     `json:"batch_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand out of the orchestrator lock. Row maps are
// shared read-only; the slices themselves are copied.
func (it *UploadItem) Clone() UploadItem {
	out := *it
	out.Headers = append([]string(nil), it.Headers...)
	out.Rows = append([]map[string]string(nil), it.Rows...)
	out.ManualHeaders = append([]string(nil), it.ManualHeaders...)
	if it.Mapping != nil {
		out.Mapping = make(map[string]string, len(it.Mapping))
		for k, v := range it.Mapping {
			out.Mapping[k] = v
		}
	}
	if it.OCRStartedAt != nil {
		started := *it.OCRStartedAt
		out.OCRStartedAt = &started
	}
	return out
}

// ItemEvent is published on every status transition.
type ItemEvent struct {
	ItemID  string     `json:"item_id"`
	Name    string     `json:"name"`
	From    ItemStatus `json:"from"`
	To      ItemStatus `json:"to"`
	BatchID string     `json:"batch_id,omitempty"`
	Error   string     `json:"error,omitempty"`
	At      time.Time  `json:"at"`
}

// ChunkUploadSession is scoped to one transfer and never persisted.
type ChunkUploadSession struct {
	UploadID   string
	PartSize   int64
	TotalParts int
	Uploaded   int64
}

// TotalPartsFor returns ceil(size/partSize).
func TotalPartsFor(size, partSize int64) (int, error) {
	if size <= 0 {
		return 0, WrapError(ErrInvalidInput, "compute parts", fmt.Errorf("size must be positive, got %d", size))
	}
	if partSize <= 0 {
		return 0, WrapError(ErrInvalidInput, "compute parts", fmt.Errorf("part size must be positive, got %d", partSize))
	}
	return int((size + partSize - 1) / partSize), nil
}

type OCRJobStatus string

const (
	OCRPending OCRJobStatus = "pending"
	OCRDone    OCRJobStatus = "done"
	OCRFailed  OCRJobStatus = "failed"
)

// OCRDocument is one document extracted by the OCR service.
type OCRDocument struct {
	DocumentType DocumentType        `json:"document_type,omitempty"`
	Fields       map[string]string   `json:"fields,omitempty"`
	Rows         []map[string]string `json:"rows,omitempty"`
	Confidence   float64             `json:"confidence,omitempty"`
}

type OCRJob struct {
	ID        string        `json:"job_id"`
	Status    OCRJobStatus  `json:"status"`
	Documents []OCRDocument `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}
