package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/mapping"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
	"github.com/kirillkom/intake-pipeline/internal/core/usecase"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/backend"
	natsbus "github.com/kirillkom/intake-pipeline/internal/infrastructure/events/nats"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/extractor/inspect"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/extractor/tabular"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/repository/snapshot"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/watch"
	"github.com/kirillkom/intake-pipeline/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue       *usecase.Orchestrator
	Batches     *usecase.BatchOperations
	HTTPMetrics *metrics.HTTPServerMetrics

	spool   *localfs.Spool
	closeFn func()
}

// New wires the full intake queue: backend client, local parsers, snapshot
// store, events and metrics. Snapshots are reconciled before New returns.
func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	lock, err := snapshot.AcquireWriterLock(cfg.SnapshotLockPath)
	if err != nil {
		return nil, fmt.Errorf("lock snapshot store: %w", err)
	}
	closers := []func(){func() { _ = lock.Unlock() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	app, err := build(ctx, service, cfg, &closers)
	if err != nil {
		closeAll()
		return nil, err
	}
	app.closeFn = closeAll
	return app, nil
}

func build(ctx context.Context, service string, cfg config.Config, closers *[]func()) (*App, error) {
	db, err := snapshot.OpenDB(cfg.SnapshotDriver, cfg.SnapshotDSN)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	snapshots := snapshot.New(db, cfg.SnapshotDriver)
	*closers = append(*closers, func() {
		if err := snapshots.Close(); err != nil {
			slog.Warn("snapshot_store_close_failed", "error", err)
		}
	})
	if err := snapshots.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure snapshot schema: %w", err)
	}

	spool, err := localfs.New(cfg.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("init spool: %w", err)
	}
	// Restored items never reference spooled bytes.
	if purged, err := spool.Purge(); err != nil {
		slog.Warn("spool_purge_failed", "error", err)
	} else if purged > 0 {
		slog.Info("spool_purged", "files", purged)
	}

	aliases, err := schema.LoadAliases(cfg.AliasTablePath)
	if err != nil {
		return nil, fmt.Errorf("load alias table: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	observer := metrics.NewPipelineMetrics(service, httpMetrics.Registry())

	client := NewBackendClient(cfg)
	aiStrategy, err := backend.NewAIStrategy(client)
	if err != nil {
		return nil, fmt.Errorf("init ai classifier: %w", err)
	}
	classifier := usecase.NewChainClassifier(observer, aiStrategy, backend.NewHeuristicStrategy(client))

	var events ports.ItemEventPublisher = ports.NopPublisher{}
	if cfg.EventsEnabled {
		bus, err := NewEventBus(cfg)
		if err != nil {
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		*closers = append(*closers, bus.Close)
		events = bus
	}

	queue := usecase.NewOrchestrator(
		usecase.QueueConfig{
			ChunkThreshold: cfg.ChunkThresholdBytes,
			InlineMaxRows:  cfg.InlineMaxRows,
			AutoSave:       cfg.AutoSave,
			Origin:         cfg.Origin,
		},
		usecase.QueueDeps{
			Classifier: classifier,
			Parser:     tabular.NewParser(cfg.InlineMaxBytes),
			Inspector:  inspect.New(cfg.OCRMaxPDFBytes),
			Uploader:   usecase.NewChunkedUploader(client, cfg.ChunkPartSize, observer),
			OCR:        client,
			Poller: usecase.NewOCRPoller(client, usecase.OCRPollPolicy{
				Interval:    cfg.OCRPollInterval,
				MaxAttempts: cfg.OCRMaxAttempts,
				MaxWait:     cfg.OCRMaxWait,
			}, observer),
			Batches:   client,
			Catalog:   client,
			Templates: mapping.NewTemplateCatalog(client, cfg.MappingCacheTTL),
			Aliases:   aliases,
			Snapshots: snapshots,
			Events:    events,
			Observer:  observer,
		},
	)
	*closers = append(*closers, queue.Close)

	restored, dropped, err := queue.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore queue: %w", err)
	}
	slog.Info("queue_restored", "restored", restored, "dropped", dropped)

	return &App{
		Config:      cfg,
		Queue:       queue,
		Batches:     usecase.NewBatchOperations(client),
		HTTPMetrics: httpMetrics,
		spool:       spool,
	}, nil
}

// NewBackendClient builds the import backend client with the configured
// retry, breaker and rate limit policy.
func NewBackendClient(cfg config.Config) *backend.Client {
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		RetryMultiplier:     cfg.RetryMultiplier,

		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),

		RateLimit: cfg.BackendRPS,
		RateBurst: cfg.BackendBurst,
	})
	return backend.New(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, exec)
}

// NewBatchOperations serves the batch commands that do not need the local
// queue.
func NewBatchOperations(cfg config.Config) *usecase.BatchOperations {
	return usecase.NewBatchOperations(NewBackendClient(cfg))
}

func NewEventBus(cfg config.Config) (*natsbus.Bus, error) {
	execCfg := resilience.DefaultConfig()
	execCfg.RateLimit = 0
	return natsbus.New(cfg.NATSURL, natsbus.Options{
		EventsSubject:      cfg.NATSEventsSubject,
		ProgressPrefix:     cfg.NATSProgressPrefix,
		ResilienceExecutor: resilience.NewExecutor(execCfg),
	})
}

// SpoolFile matches httpadapter.Spooler.
func (a *App) SpoolFile(ctx context.Context, name, contentType string, data io.Reader) (domain.FileSource, error) {
	file, err := a.spool.Save(ctx, name, contentType, data)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// NewInbox returns nil when no inbox directory is configured.
func (a *App) NewInbox() *watch.Inbox {
	if a.Config.InboxDir == "" {
		return nil
	}
	return watch.NewInbox(watch.Config{
		Dir:         a.Config.InboxDir,
		Debounce:    a.Config.InboxDebounce,
		InitialScan: true,
	}, a.Queue)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
