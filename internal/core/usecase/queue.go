package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/mapping"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
)

type QueueConfig struct {
	ChunkThreshold int64
	InlineMaxRows  int
	AutoSave       bool
	Origin         string
}

type QueueDeps struct {
	Classifier ports.FileClassifier
	Parser     ports.RowParser
	Inspector  ports.DocumentInspector
	Uploader   *ChunkedUploader
	OCR        ports.OCRAPI
	Poller     *OCRPoller
	Batches    ports.BatchStore
	Catalog    ports.MappingCatalog
	Templates  *mapping.TemplateCatalog
	Aliases    *schema.AliasTable
	Snapshots  ports.SnapshotStore
	Events     ports.ItemEventPublisher
	Observer   ports.PipelineObserver
}

// Orchestrator owns every UploadItem and drives each one through its own
// background task. Item state is only changed under mu and every change is
// written through to the snapshot store.
type Orchestrator struct {
	cfg        QueueConfig
	classifier ports.FileClassifier
	parser     ports.RowParser
	inspector  ports.DocumentInspector
	uploader   *ChunkedUploader
	ocr        ports.OCRAPI
	poller     *OCRPoller
	batches    ports.BatchStore
	catalog    ports.MappingCatalog
	templates  *mapping.TemplateCatalog
	aliases    *schema.AliasTable
	snapshots  ports.SnapshotStore
	events     ports.ItemEventPublisher
	observer   ports.PipelineObserver

	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	items  map[string]*domain.UploadItem
	order  []string
	tasks  map[string]context.CancelFunc
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ ports.IntakeQueue = (*Orchestrator)(nil)

func NewOrchestrator(cfg QueueConfig, deps QueueDeps) *Orchestrator {
	if cfg.Origin == "" {
		cfg.Origin = "upload"
	}
	if deps.Aliases == nil {
		deps.Aliases = schema.DefaultAliases()
	}
	if deps.Snapshots == nil {
		deps.Snapshots = memorySnapshots{}
	}
	if deps.Events == nil {
		deps.Events = ports.NopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver{}
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		parser:     deps.Parser,
		inspector:  deps.Inspector,
		uploader:   deps.Uploader,
		ocr:        deps.OCR,
		poller:     deps.Poller,
		batches:    deps.Batches,
		catalog:    deps.Catalog,
		templates:  deps.Templates,
		aliases:    deps.Aliases,
		snapshots:  deps.Snapshots,
		events:     deps.Events,
		observer:   deps.Observer,
		now:        time.Now,
		newID:      uuid.NewString,
		items:      make(map[string]*domain.UploadItem),
		tasks:      make(map[string]context.CancelFunc),
		baseCtx:    baseCtx,
		cancel:     cancel,
	}
}

// Enqueue creates one pending item per file and starts processing each of
// them independently.
func (o *Orchestrator) Enqueue(ctx context.Context, files []domain.FileSource) ([]domain.UploadItem, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue", errors.New("no files"))
	}
	now := o.now().UTC()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, errors.New("enqueue: queue is closed")
	}
	created := make([]domain.UploadItem, 0, len(files))
	for _, f := range files {
		item := &domain.UploadItem{
			ID:           o.newID(),
			File:         f,
			Name:         f.Name(),
			Size:         f.Size(),
			DeclaredType: f.ContentType(),
			Status:       domain.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		o.items[item.ID] = item
		o.order = append(o.order, item.ID)
		o.persistLocked(ctx, item)
		created = append(created, item.Clone())
	}
	for _, item := range created {
		o.startLocked(item.ID)
	}
	o.mu.Unlock()

	for _, item := range created {
		slog.Info("item_enqueued", "item_id", item.ID, "name", item.Name, "size", item.Size)
	}
	return created, nil
}

func (o *Orchestrator) List() []domain.UploadItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.UploadItem, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.items[id].Clone())
	}
	return out
}

func (o *Orchestrator) Get(id string) (domain.UploadItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return domain.UploadItem{}, false
	}
	return item.Clone(), true
}

// Remove drops an item together with its snapshot and spooled file, and
// cancels its task. Late results of the cancelled task are discarded.
func (o *Orchestrator) Remove(ctx context.Context, id string) error {
	o.mu.Lock()
	item, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return domain.WrapError(domain.ErrNotFound, "remove item", fmt.Errorf("item %s", id))
	}
	file := item.File
	delete(o.items, id)
	o.order = withoutID(o.order, id)
	cancel := o.tasks[id]
	delete(o.tasks, id)
	err := o.snapshots.Delete(ctx, id)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.releaseFile(id, file)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	slog.Info("item_removed", "item_id", id)
	return nil
}

// Close cancels every running task and waits for them to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) startLocked(id string) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.tasks[id] = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.process(ctx, id)
		o.mu.Lock()
		delete(o.tasks, id)
		o.mu.Unlock()
	}()
}

func (o *Orchestrator) process(ctx context.Context, id string) {
	item, ok, err := o.transition(ctx, id, domain.StatusProcessing, nil)
	if err != nil {
		slog.Error("item_start_failed", "item_id", id, "error", err.Error())
		return
	}
	if !ok {
		return
	}

	route, kind, err := RouteFor(item.Name, item.DeclaredType, item.Size, o.cfg.ChunkThreshold)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}
	slog.Info("item_routed", "item_id", id, "route", route, "kind", kind)

	switch route {
	case RouteInline:
		err = o.runInline(ctx, item, kind)
	case RouteChunked:
		err = o.runChunked(ctx, item, kind)
	case RouteOCR:
		err = o.runOCR(ctx, item, kind)
	}
	if err != nil {
		o.fail(ctx, id, err)
	}
}

func (o *Orchestrator) runInline(ctx context.Context, item domain.UploadItem, kind domain.FileKind) error {
	var (
		headers     []string
		rows        []map[string]string
		result      *domain.ClassificationResult
		classifyErr error
		template    *domain.ColumnMapping
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		headers, rows, err = o.parser.Parse(gctx, item.File, kind)
		if err != nil {
			return fmt.Errorf("parse %s: %w", item.Name, err)
		}
		return nil
	})
	g.Go(func() error {
		result, classifyErr = o.classifier.Classify(gctx, item.File)
		return nil
	})
	g.Go(func() error {
		template = o.matchTemplate(gctx, item.Name)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "parse", fmt.Errorf("%s has no data rows", item.Name))
	}
	if o.cfg.InlineMaxRows > 0 && len(rows) > o.cfg.InlineMaxRows {
		slog.Info("inline_rows_exceeded", "item_id", item.ID, "rows", len(rows), "max", o.cfg.InlineMaxRows)
		return o.runChunked(ctx, item, kind)
	}

	ex := extraction{headers: headers, rows: rows, template: template, classifyErr: classifyErr}
	if classifyErr == nil {
		ex.docType = result.SuggestedDocumentType
		ex.parserID = result.SuggestedParser
		ex.confidence = result.Confidence
		ex.requiresConfirmation = result.RequiresConfirmation
		ex.suggestion = result.MappingSuggestion
	}
	return o.prepare(ctx, item.ID, ex)
}

func (o *Orchestrator) runChunked(ctx context.Context, item domain.UploadItem, kind domain.FileKind) error {
	docType, parserID, err := o.sourceTypeFor(ctx, item, kind)
	if err != nil {
		if ctx.Err() == nil && domain.IsKind(err, domain.ErrClassificationFailed) {
			return o.parkUnclassified(ctx, item.ID, err)
		}
		return err
	}

	batch, mappingID, err := o.storeUpload(ctx, item, docType, parserID, false)
	if err != nil {
		return err
	}
	_, _, err = o.transition(ctx, item.ID, domain.StatusSaved, func(it *domain.UploadItem) {
		it.Chunked = true
		it.BatchID = batch.ID
		it.DocumentType = docType
		it.ParserID = parserID
		it.MappingID = mappingID
		it.RequiresConfirmation = batch.RequiresConfirmation
		it.Progress = uploadedProgress(batch)
	})
	return err
}

// parkUnclassified leaves a chunked item ready without a batch. Nothing has
// been uploaded yet; the transfer starts once an operator picks the document
// type and saves.
func (o *Orchestrator) parkUnclassified(ctx context.Context, id string, cause error) error {
	_, _, err := o.transition(ctx, id, domain.StatusReady, func(it *domain.UploadItem) {
		it.Chunked = true
		it.DocumentType = domain.DocumentTypeUnknown
		it.RequiresConfirmation = true
		it.Error = cause.Error()
		it.ErrorKind = domain.ErrorKindClassificationFailed
		it.Progress = "select a document type to upload"
	})
	return err
}

// storeUpload sends the item's file through the chunk protocol and creates a
// batch from the completed upload. confirm locks in parserID when the server
// asks for confirmation.
func (o *Orchestrator) storeUpload(ctx context.Context, item domain.UploadItem, docType domain.DocumentType, parserID string, confirm bool) (*domain.Batch, string, error) {
	done, err := o.uploader.Upload(ctx, item.File, func(part, total int, uploaded, size int64) {
		o.noteProgress(ctx, item.ID, fmt.Sprintf("uploading part %d/%d (%s of %s)",
			part, total, humanize.Bytes(uint64(uploaded)), humanize.Bytes(uint64(size))))
	})
	if err != nil {
		return nil, "", err
	}

	req := ports.FromUploadRequest{FileKey: done.FileKey, SourceType: docType, ParserID: parserID}
	if template := o.matchTemplate(ctx, item.Name); template != nil {
		req.MappingID = template.ID
	}
	batch, err := o.batches.CreateBatchFromUpload(ctx, req)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrSave, "create batch from upload", err)
	}
	if confirm && batch.RequiresConfirmation && parserID != "" {
		if err := o.batches.ConfirmBatch(ctx, batch.ID, parserID); err != nil {
			return batch, req.MappingID, fmt.Errorf("confirm batch: %w", err)
		}
		batch.RequiresConfirmation = false
	}
	o.templatesUsed(req.MappingID)
	return batch, req.MappingID, nil
}

func uploadedProgress(batch *domain.Batch) string {
	if batch.RequiresConfirmation {
		return "uploaded, waiting for parser confirmation"
	}
	return "processing on server"
}

func (o *Orchestrator) sourceTypeFor(ctx context.Context, item domain.UploadItem, kind domain.FileKind) (domain.DocumentType, string, error) {
	if kind == domain.KindXML && o.inspector != nil {
		docType, parserID, err := o.inspector.SniffXML(item.File)
		if err == nil && docType.Valid() {
			return docType, parserID, nil
		}
		if err != nil {
			slog.Warn("xml_sniff_failed", "item_id", item.ID, "error", err.Error())
		}
	}
	result, err := o.classifier.Classify(ctx, item.File)
	if err != nil {
		return "", "", err
	}
	if !result.SuggestedDocumentType.Valid() {
		return "", "", domain.WrapError(domain.ErrClassificationFailed, "classify",
			fmt.Errorf("no document type suggested for %s", item.Name))
	}
	return result.SuggestedDocumentType, result.SuggestedParser, nil
}

func (o *Orchestrator) runOCR(ctx context.Context, item domain.UploadItem, kind domain.FileKind) error {
	if kind == domain.KindPDF && o.inspector != nil {
		if pages, err := o.inspector.PageCount(item.File); err == nil {
			o.setProgress(ctx, item.ID, fmt.Sprintf("submitting %d page(s) for OCR", pages))
		} else {
			slog.Debug("pdf_inspect_failed", "item_id", item.ID, "error", err.Error())
		}
	}

	jobID, err := o.ocr.SubmitOCR(ctx, item.File)
	if err != nil {
		return fmt.Errorf("submit ocr: %w", err)
	}
	started := o.now().UTC()
	o.transition(ctx, item.ID, domain.StatusProcessing, func(it *domain.UploadItem) {
		it.OCRJobID = jobID
		it.OCRStartedAt = &started
		it.OCRAttempts = 0
		it.Progress = "waiting for OCR"
	})

	docs, err := o.poller.Wait(ctx, jobID, started, func(attempt int) {
		o.transition(ctx, item.ID, domain.StatusProcessing, func(it *domain.UploadItem) {
			it.OCRAttempts = attempt
			it.Progress = fmt.Sprintf("waiting for OCR (attempt %d)", attempt)
		})
	})
	if err != nil {
		return err
	}

	ex := extractionFromOCR(docs)
	if len(ex.rows) == 0 {
		return domain.WrapError(domain.ErrOCRJobFailed, "read ocr result", fmt.Errorf("job %s extracted no rows", jobID))
	}
	return o.prepare(ctx, item.ID, ex)
}

// extraction is what the inline and OCR paths learned about a file before it
// becomes ready.
type extraction struct {
	headers              []string
	rows                 []map[string]string
	docType              domain.DocumentType
	parserID             string
	confidence           float64
	requiresConfirmation bool
	suggestion           mapping.Mapping
	template             *domain.ColumnMapping
	classifyErr          error
}

func (o *Orchestrator) prepare(ctx context.Context, id string, ex extraction) error {
	var m mapping.Mapping
	if ex.docType.Valid() {
		m = o.suggestMapping(ctx, ex.headers, ex.docType, ex.template, ex.suggestion)
	}

	item, ok, err := o.transition(ctx, id, domain.StatusReady, func(it *domain.UploadItem) {
		it.Headers = ex.headers
		it.Rows = ex.rows
		it.DocumentType = ex.docType
		it.ParserID = ex.parserID
		it.Confidence = ex.confidence
		it.RequiresConfirmation = ex.requiresConfirmation
		it.Mapping = m
		if ex.template != nil {
			it.MappingID = ex.template.ID
		}
		it.Progress = fmt.Sprintf("%d rows", len(ex.rows))
		if !ex.docType.Valid() {
			cause := ex.classifyErr
			if cause == nil {
				cause = domain.WrapError(domain.ErrClassificationFailed, "classify", errors.New("no document type suggested"))
			}
			it.DocumentType = domain.DocumentTypeUnknown
			it.RequiresConfirmation = true
			it.Error = cause.Error()
			it.ErrorKind = domain.ErrorKindClassificationFailed
		}
	})
	if err != nil || !ok {
		return err
	}
	if o.cfg.AutoSave && !item.RequiresConfirmation && item.DocumentType.Valid() {
		if err := o.saveItem(ctx, id, false); err != nil {
			slog.Warn("auto_save_failed", "item_id", id, "error", err.Error())
		}
	}
	return nil
}

// suggestMapping merges the template, the classifier suggestion, the server
// suggestion and local alias matching, in that order of precedence.
func (o *Orchestrator) suggestMapping(ctx context.Context, headers []string, docType domain.DocumentType, template *domain.ColumnMapping, suggestion mapping.Mapping) mapping.Mapping {
	var sources []mapping.Mapping
	if template != nil {
		sources = append(sources, template.Mapping)
	}
	if len(suggestion) > 0 {
		sources = append(sources, suggestion)
	}
	if template == nil && len(suggestion) == 0 && o.catalog != nil {
		server, err := o.catalog.SuggestMapping(ctx, headers, docType)
		if err != nil {
			slog.Warn("mapping_suggest_failed", "document_type", docType, "error", err.Error())
		} else {
			sources = append(sources, server)
		}
	}
	sources = append(sources, mapping.AutoMap(headers, o.aliases, docType))
	return mergeSuggestions(docType, headers, sources...)
}

func mergeSuggestions(docType domain.DocumentType, headers []string, sources ...mapping.Mapping) mapping.Mapping {
	out := make(mapping.Mapping)
	used := make(map[string]bool)
	for _, src := range sources {
		for _, h := range headers {
			target, ok := src[h]
			if !ok || target == mapping.Ignore || used[target] {
				continue
			}
			if _, done := out[h]; done {
				continue
			}
			if _, valid := schema.Lookup(docType, target); !valid {
				continue
			}
			out[h] = target
			used[target] = true
		}
	}
	return out
}

func (o *Orchestrator) matchTemplate(ctx context.Context, name string) *domain.ColumnMapping {
	if o.templates == nil {
		return nil
	}
	template, err := o.templates.Match(ctx, name)
	if err != nil {
		slog.Warn("mapping_template_match_failed", "name", name, "error", err.Error())
		return nil
	}
	return template
}

func extractionFromOCR(docs []domain.OCRDocument) extraction {
	var ex extraction
	headerSet := make(map[string]bool)
	for _, doc := range docs {
		rows := doc.Rows
		if len(rows) == 0 && len(doc.Fields) > 0 {
			rows = []map[string]string{doc.Fields}
		}
		for _, row := range rows {
			for k := range row {
				headerSet[k] = true
			}
		}
		ex.rows = append(ex.rows, rows...)
		if !ex.docType.Valid() && doc.DocumentType.Valid() {
			ex.docType = doc.DocumentType
		}
		if doc.Confidence > 0 && (ex.confidence == 0 || doc.Confidence < ex.confidence) {
			ex.confidence = doc.Confidence
		}
	}
	for h := range headerSet {
		ex.headers = append(ex.headers, h)
	}
	sort.Strings(ex.headers)

	ex.parserID = ocrParserFor(ex.docType)
	ex.requiresConfirmation = domain.BandFor(ex.confidence) == domain.BandLow
	if !ex.docType.Valid() {
		ex.classifyErr = domain.WrapError(domain.ErrClassificationFailed, "read ocr result", errors.New("no document type detected"))
	}
	return ex
}

func ocrParserFor(docType domain.DocumentType) string {
	switch docType {
	case domain.DocumentTypeInvoices:
		return domain.ParserOCRInvoice
	case domain.DocumentTypeExpenses:
		return domain.ParserOCRReceipt
	case domain.DocumentTypeBankTransactions:
		return domain.ParserOCRBankStatement
	default:
		return ""
	}
}

// transition moves an item to status to, applying mutate under the lock. It
// reports false when the item is gone, which is not an error: late results of
// removed items are dropped.
func (o *Orchestrator) transition(ctx context.Context, id string, to domain.ItemStatus, mutate func(*domain.UploadItem)) (domain.UploadItem, bool, error) {
	o.mu.Lock()
	item, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return domain.UploadItem{}, false, nil
	}
	from := item.Status
	if !domain.CanTransition(from, to) {
		o.mu.Unlock()
		return domain.UploadItem{}, true, domain.WrapError(domain.ErrInvalidTransition, "transition item", fmt.Errorf("%s: %s -> %s", id, from, to))
	}
	item.Status = to
	if mutate != nil {
		mutate(item)
	}
	var release domain.FileSource
	if to.Terminal() {
		release, item.File = item.File, nil
	}
	item.UpdatedAt = o.now().UTC()
	o.persistLocked(ctx, item)
	snapshot := item.Clone()
	o.mu.Unlock()

	o.releaseFile(id, release)
	o.observer.ItemTransition(from, to)
	if from == to {
		return snapshot, true, nil
	}
	slog.Info("item_transition", "item_id", id, "from", from, "to", to, "error", snapshot.Error)
	event := domain.ItemEvent{
		ItemID:  id,
		Name:    snapshot.Name,
		From:    from,
		To:      to,
		BatchID: snapshot.BatchID,
		Error:   snapshot.Error,
		At:      snapshot.UpdatedAt,
	}
	if err := o.events.PublishItemEvent(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("item_event_publish_failed", "item_id", id, "error", err.Error())
	}
	return snapshot, true, nil
}

// update changes an item without a status transition.
func (o *Orchestrator) update(ctx context.Context, id string, mutate func(*domain.UploadItem) error) (domain.UploadItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return domain.UploadItem{}, domain.WrapError(domain.ErrNotFound, "update item", fmt.Errorf("item %s", id))
	}
	draft := item.Clone()
	if err := mutate(&draft); err != nil {
		return domain.UploadItem{}, err
	}
	draft.UpdatedAt = o.now().UTC()
	*item = draft
	o.persistLocked(ctx, item)
	return item.Clone(), nil
}

// noteProgress changes the progress text in any status.
func (o *Orchestrator) noteProgress(ctx context.Context, id, text string) {
	_, _ = o.update(ctx, id, func(it *domain.UploadItem) error {
		it.Progress = text
		return nil
	})
}

func (o *Orchestrator) releaseFile(id string, file domain.FileSource) {
	if file == nil {
		return
	}
	if err := domain.ReleaseFile(file); err != nil {
		slog.Warn("file_release_failed", "item_id", id, "error", err.Error())
	}
}

// templatesUsed refreshes template ranking after a batch used one.
func (o *Orchestrator) templatesUsed(mappingID string) {
	if mappingID != "" && o.templates != nil {
		o.templates.Invalidate()
	}
}

func (o *Orchestrator) setProgress(ctx context.Context, id, text string) {
	o.transition(ctx, id, domain.StatusProcessing, func(it *domain.UploadItem) {
		it.Progress = text
	})
}

func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	if ctx.Err() != nil {
		slog.Info("item_abandoned", "item_id", id, "error", cause.Error())
		return
	}
	_, _, err := o.transition(ctx, id, domain.StatusError, func(it *domain.UploadItem) {
		it.Error = cause.Error()
		it.ErrorKind = domain.KindOf(cause)
	})
	if err != nil {
		slog.Error("item_fail_transition", "item_id", id, "cause", cause.Error(), "error", err.Error())
	}
}

func (o *Orchestrator) persistLocked(ctx context.Context, item *domain.UploadItem) {
	if err := o.snapshots.Put(context.WithoutCancel(ctx), item.Clone()); err != nil {
		slog.Warn("snapshot_write_failed", "item_id", item.ID, "error", err.Error())
	}
}

func withoutID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type memorySnapshots struct{}

func (memorySnapshots) Load(context.Context) ([]domain.UploadItem, error) { return nil, nil }
func (memorySnapshots) Put(context.Context, domain.UploadItem) error      { return nil }
func (memorySnapshots) Delete(context.Context, string) error              { return nil }
