package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

type memFile struct {
	name        string
	contentType string
	data        []byte
	size        int64
	released    atomic.Int32
}

func newMemFile(name, contentType string, data []byte) *memFile {
	return &memFile{name: name, contentType: contentType, data: data, size: int64(len(data))}
}

func (f *memFile) Name() string        { return f.name }
func (f *memFile) Size() int64         { return f.size }
func (f *memFile) ContentType() string { return f.contentType }

func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *memFile) Release() error {
	f.released.Add(1)
	return nil
}

// waitReleased polls until the file has been released n times.
func waitReleased(t *testing.T, f *memFile, n int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.released.Load() == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("%s released %d times, want %d", f.name, f.released.Load(), n)
}

type strategyFake struct {
	name   string
	result *domain.ClassificationResult
	err    error
	calls  int
}

func (s *strategyFake) Name() string { return s.name }

func (s *strategyFake) Classify(context.Context, domain.FileSource) (*domain.ClassificationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	copyResult := *s.result
	return &copyResult, nil
}

type classifierFake struct {
	mu     sync.Mutex
	result *domain.ClassificationResult
	err    error
	calls  int
}

func (c *classifierFake) Classify(context.Context, domain.FileSource) (*domain.ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	copyResult := *c.result
	return &copyResult, nil
}

type parserFake struct {
	mu      sync.Mutex
	headers []string
	rows    []map[string]string
	err     error
	calls   int
}

func (p *parserFake) Parse(context.Context, domain.FileSource, domain.FileKind) ([]string, []map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.headers, p.rows, p.err
}

type inspectorFake struct {
	docType  domain.DocumentType
	parserID string
	sniffErr error
	pages    int
}

func (i *inspectorFake) SniffXML(domain.FileSource) (domain.DocumentType, string, error) {
	return i.docType, i.parserID, i.sniffErr
}

func (i *inspectorFake) PageCount(domain.FileSource) (int, error) { return i.pages, nil }

type uploadAPIFake struct {
	mu            sync.Mutex
	partSize      int64
	parts         [][]byte
	failPart      int
	ackDelta      int64
	completeBytes int64
	completeCalls int
	expectedParts int
	expectedSize  int64
}

func (u *uploadAPIFake) InitUpload(_ context.Context, _, _ string, _, desired int64) (*ports.InitUploadResponse, error) {
	size := u.partSize
	if size == 0 {
		size = desired
	}
	return &ports.InitUploadResponse{UploadID: "up-1", PartSize: size}, nil
}

func (u *uploadAPIFake) UploadPart(_ context.Context, _ string, partNumber int, data []byte) (*ports.PartResponse, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if partNumber == u.failPart {
		return nil, errors.New("connection reset")
	}
	u.parts = append(u.parts, append([]byte(nil), data...))
	return &ports.PartResponse{OK: true, Bytes: int64(len(data)) + u.ackDelta}, nil
}

func (u *uploadAPIFake) CompleteUpload(_ context.Context, _ string, expectedParts int, expectedSize int64) (*ports.CompleteUploadResponse, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.completeCalls++
	u.expectedParts = expectedParts
	u.expectedSize = expectedSize
	stored := expectedSize
	if u.completeBytes != 0 {
		stored = u.completeBytes
	}
	return &ports.CompleteUploadResponse{FileKey: "files/up-1", Bytes: stored}, nil
}

// ocrFake answers polls from statuses in order and repeats the last one.
type ocrFake struct {
	mu        sync.Mutex
	statuses  []domain.OCRJobStatus
	documents []domain.OCRDocument
	errs      []error
	jobErr    string
	polls     int
	block     bool
}

func (o *ocrFake) SubmitOCR(context.Context, domain.FileSource) (string, error) {
	return "job-1", nil
}

func (o *ocrFake) GetOCRJob(ctx context.Context, jobID string) (*domain.OCRJob, error) {
	if o.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.polls
	o.polls++
	if i < len(o.errs) && o.errs[i] != nil {
		return nil, o.errs[i]
	}
	status := domain.OCRPending
	if len(o.statuses) > 0 {
		status = o.statuses[min(i, len(o.statuses)-1)]
	}
	job := &domain.OCRJob{ID: jobID, Status: status}
	switch status {
	case domain.OCRDone:
		job.Documents = o.documents
	case domain.OCRFailed:
		job.Error = o.jobErr
	}
	return job, nil
}

type batchStoreFake struct {
	mu           sync.Mutex
	batch        domain.Batch
	createErr    error
	ingestErr    error
	created      int
	fromUpload   []ports.FromUploadRequest
	ingested     []domain.IngestRow
	confirmed    []string
	confirmation *domain.ConfirmationStatus
	promoted     int
	attached     []string
	promoteResp  domain.PromoteResult

	uploadNeedsConfirmation bool
}

func (b *batchStoreFake) CreateBatch(_ context.Context, origin string, docType domain.DocumentType, _ *domain.ClassificationMetadata) (*domain.Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	if b.createErr != nil {
		return nil, b.createErr
	}
	batch := b.batch
	batch.Origin = origin
	batch.DocumentType = docType
	if batch.ID == "" {
		batch.ID = "batch-1"
	}
	return &batch, nil
}

func (b *batchStoreFake) CreateBatchFromUpload(_ context.Context, req ports.FromUploadRequest) (*domain.Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fromUpload = append(b.fromUpload, req)
	return &domain.Batch{
		ID:                   "batch-up",
		DocumentType:         req.SourceType,
		Status:               domain.BatchProcessing,
		RequiresConfirmation: b.uploadNeedsConfirmation,
	}, nil
}

func (b *batchStoreFake) IngestBatch(_ context.Context, batchID string, rows []domain.IngestRow, _ string) (*domain.IngestResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ingestErr != nil {
		return nil, b.ingestErr
	}
	b.ingested = append(b.ingested, rows...)
	result := &domain.IngestResult{BatchID: batchID}
	for i := range rows {
		result.Outcomes = append(result.Outcomes, domain.RowOutcome{Row: i, Accepted: true})
	}
	return result, nil
}

func (b *batchStoreFake) ValidateBatch(_ context.Context, batchID string) (*domain.IngestResult, error) {
	return &domain.IngestResult{BatchID: batchID}, nil
}

func (b *batchStoreFake) GetBatch(_ context.Context, batchID string) (*domain.Batch, error) {
	batch := b.batch
	batch.ID = batchID
	return &batch, nil
}

func (b *batchStoreFake) ConfirmBatch(_ context.Context, _ string, parserID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmed = append(b.confirmed, parserID)
	return nil
}

func (b *batchStoreFake) ConfirmationStatus(context.Context, string) (*domain.ConfirmationStatus, error) {
	if b.confirmation == nil {
		return &domain.ConfirmationStatus{}, nil
	}
	return b.confirmation, nil
}

func (b *batchStoreFake) ListItems(context.Context, string, domain.ItemValidation) ([]domain.Item, error) {
	return nil, nil
}

func (b *batchStoreFake) PatchItem(_ context.Context, _, itemID string, normalized map[string]any) (*domain.Item, error) {
	return &domain.Item{ID: itemID, Normalized: normalized, Status: domain.ItemPending}, nil
}

func (b *batchStoreFake) ErrorsReport(context.Context, string) ([]byte, error) {
	return []byte("row,field,message\n"), nil
}

func (b *batchStoreFake) AttachBatchPhoto(_ context.Context, batchID, filename string, _ io.Reader) error {
	b.attached = append(b.attached, batchID+"/"+filename)
	return nil
}

func (b *batchStoreFake) AttachItemPhoto(_ context.Context, batchID, itemID, filename string, _ io.Reader) error {
	b.attached = append(b.attached, batchID+"/"+itemID+"/"+filename)
	return nil
}

func (b *batchStoreFake) PromoteBatch(context.Context, string, domain.PromoteOptions) (*domain.PromoteResult, error) {
	b.promoted++
	result := b.promoteResp
	return &result, nil
}

func (b *batchStoreFake) ingestedRows() []domain.IngestRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.IngestRow(nil), b.ingested...)
}

type mappingCatalogFake struct {
	mu        sync.Mutex
	templates []domain.ColumnMapping
	lists     int
}

func (c *mappingCatalogFake) ListMappings(context.Context) ([]domain.ColumnMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	return c.templates, nil
}

func (c *mappingCatalogFake) SuggestMapping(context.Context, []string, domain.DocumentType) (map[string]string, error) {
	return nil, nil
}

func (c *mappingCatalogFake) listCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

type snapshotFake struct {
	mu      sync.Mutex
	items   map[string]domain.UploadItem
	deleted []string
}

func newSnapshotFake(items ...domain.UploadItem) *snapshotFake {
	s := &snapshotFake{items: make(map[string]domain.UploadItem)}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *snapshotFake) Load(context.Context) ([]domain.UploadItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UploadItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out, nil
}

func (s *snapshotFake) Put(_ context.Context, item domain.UploadItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.File = nil
	s.items[item.ID] = item
	return nil
}

func (s *snapshotFake) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *snapshotFake) get(id string) (domain.UploadItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.ItemEvent
}

func (p *publisherFake) PublishItemEvent(_ context.Context, event domain.ItemEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *publisherFake) transitionsFor(id string) []domain.ItemStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.ItemStatus
	for _, e := range p.events {
		if e.ItemID == id {
			out = append(out, e.To)
		}
	}
	return out
}

// waitForStatus polls until the item reaches one of the given statuses.
func waitForStatus(t *testing.T, q *Orchestrator, id string, statuses ...domain.ItemStatus) domain.UploadItem {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if item, ok := q.Get(id); ok {
			for _, s := range statuses {
				if item.Status == s {
					return item
				}
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	item, _ := q.Get(id)
	t.Fatalf("item %s did not reach %v, last status %q (%s)", id, statuses, item.Status, item.Error)
	return item
}
