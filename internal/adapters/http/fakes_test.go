package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/observability/metrics"
)

type memFile struct {
	name        string
	contentType string
	data        []byte
	released    int
}

func (f *memFile) Name() string                 { return f.name }
func (f *memFile) Size() int64                  { return int64(len(f.data)) }
func (f *memFile) ContentType() string          { return f.contentType }
func (f *memFile) Open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(f.data)), nil }

func (f *memFile) Release() error {
	f.released++
	return nil
}

func memSpool(_ context.Context, name, contentType string, data io.Reader) (domain.FileSource, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	return &memFile{name: name, contentType: contentType, data: raw}, nil
}

// spoolFake keeps every file it spooled and fails on the part named failOn.
type spoolFake struct {
	files  []*memFile
	failOn string
}

func (s *spoolFake) spool(ctx context.Context, name, contentType string, data io.Reader) (domain.FileSource, error) {
	if name == s.failOn {
		return nil, errors.New("no space left on device")
	}
	file, err := memSpool(ctx, name, contentType, data)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, file.(*memFile))
	return file, nil
}

type queueFake struct {
	mu         sync.Mutex
	items      map[string]domain.UploadItem
	order      []string
	enqueued   []domain.FileSource
	mappings   map[string]string
	enqueueErr error
	saveErr    error
	removeErr  error
}

func newQueueFake(items ...domain.UploadItem) *queueFake {
	q := &queueFake{items: make(map[string]domain.UploadItem), mappings: make(map[string]string)}
	for _, it := range items {
		q.items[it.ID] = it
		q.order = append(q.order, it.ID)
	}
	return q
}

func (q *queueFake) Enqueue(_ context.Context, files []domain.FileSource) ([]domain.UploadItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue", errors.New("no files"))
	}
	if q.enqueueErr != nil {
		return nil, q.enqueueErr
	}
	out := make([]domain.UploadItem, 0, len(files))
	for i, f := range files {
		item := domain.UploadItem{
			ID:        fmt.Sprintf("item-%d", len(q.order)+i+1),
			Name:      f.Name(),
			Size:      f.Size(),
			Status:    domain.StatusPending,
			CreatedAt: time.Unix(0, 0).UTC(),
		}
		out = append(out, item)
	}
	for _, it := range out {
		q.items[it.ID] = it
		q.order = append(q.order, it.ID)
	}
	q.enqueued = append(q.enqueued, files...)
	return out, nil
}

func (q *queueFake) List() []domain.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.UploadItem, 0, len(q.order))
	for _, id := range q.order {
		if it, ok := q.items[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

func (q *queueFake) Get(id string) (domain.UploadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	return it, ok
}

func (q *queueFake) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.removeErr != nil {
		return q.removeErr
	}
	delete(q.items, id)
	return nil
}

func (q *queueFake) Save(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.saveErr != nil {
		return q.saveErr
	}
	it, ok := q.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save", fmt.Errorf("item %s", id))
	}
	it.Status = domain.StatusSaved
	it.BatchID = "batch-1"
	q.items[id] = it
	return nil
}

func (q *queueFake) SetMapping(_ context.Context, id, header, target string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "set mapping", fmt.Errorf("item %s", id))
	}
	if it.Mapping == nil {
		it.Mapping = make(map[string]string)
	}
	it.Mapping[header] = target
	q.items[id] = it
	return nil
}

func (q *queueFake) SetDocumentType(_ context.Context, id string, docType domain.DocumentType, parserID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "set document type", fmt.Errorf("item %s", id))
	}
	it.DocumentType = docType
	it.ParserID = parserID
	it.ErrorKind = domain.ErrorKindNone
	q.items[id] = it
	return nil
}

type batchesFake struct {
	batch      *domain.Batch
	promoteErr error
	report     []byte

	confirmedParser string
	listedStatus    domain.ItemValidation
	patched         map[string]any
	photoBatch      string
	photoItem       string
	photoName       string
	photoBody       []byte
}

func (b *batchesFake) GetBatch(_ context.Context, batchID string) (*domain.Batch, error) {
	if b.batch == nil || b.batch.ID != batchID {
		return nil, domain.WrapError(domain.ErrNotFound, "get batch", fmt.Errorf("batch %s", batchID))
	}
	return b.batch, nil
}

func (b *batchesFake) ConfirmBatch(_ context.Context, _ string, parserID string) error {
	b.confirmedParser = parserID
	return nil
}

func (b *batchesFake) ValidateBatch(_ context.Context, batchID string) (*domain.IngestResult, error) {
	return &domain.IngestResult{
		BatchID: batchID,
		Outcomes: []domain.RowOutcome{
			{ItemID: "row-0", Row: 0, Accepted: true},
			{ItemID: "row-1", Row: 1, Errors: []domain.ValidationIssue{{Field: "sku", Code: "required"}}},
		},
	}, nil
}

func (b *batchesFake) ListItems(_ context.Context, _ string, status domain.ItemValidation) ([]domain.Item, error) {
	b.listedStatus = status
	return []domain.Item{{ID: "row-1", Status: domain.ItemInvalid}}, nil
}

func (b *batchesFake) PatchItem(_ context.Context, _ string, itemID string, normalized map[string]any) (*domain.Item, error) {
	b.patched = normalized
	return &domain.Item{ID: itemID, Normalized: normalized, Status: domain.ItemValid}, nil
}

func (b *batchesFake) AttachPhoto(_ context.Context, batchID, itemID, filename string, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.photoBatch, b.photoItem, b.photoName, b.photoBody = batchID, itemID, filename, raw
	return nil
}

func (b *batchesFake) PromoteBatch(context.Context, string, domain.PromoteOptions) (*domain.PromoteResult, error) {
	if b.promoteErr != nil {
		return nil, b.promoteErr
	}
	return &domain.PromoteResult{Created: 2}, nil
}

func (b *batchesFake) ErrorsReport(context.Context, string) ([]byte, error) {
	return b.report, nil
}

func newTestHandler(cfg config.Config, queue *queueFake, batches *batchesFake) http.Handler {
	if queue == nil {
		queue = newQueueFake()
	}
	if batches == nil {
		batches = &batchesFake{}
	}
	return NewRouter(cfg, queue, batches, memSpool, metrics.NewHTTPServerMetrics("intake-api-test")).Handler()
}
