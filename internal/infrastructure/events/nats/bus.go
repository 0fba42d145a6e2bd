package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/resilience"
)

// Bus publishes item transitions and reads the per-batch progress channel.
type Bus struct {
	conn           *nats.Conn
	eventsSubject  string
	progressPrefix string
	executor       *resilience.Executor
}

type Options struct {
	EventsSubject        string
	ProgressPrefix       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	eventsSubject := options.EventsSubject
	if eventsSubject == "" {
		eventsSubject = "intake.items"
	}
	progressPrefix := options.ProgressPrefix
	if progressPrefix == "" {
		progressPrefix = "imports.progress"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("intake-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:           conn,
		eventsSubject:  eventsSubject,
		progressPrefix: progressPrefix,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishItemEvent sends one transition on <events subject>.<to status>.
func (b *Bus) PublishItemEvent(ctx context.Context, event domain.ItemEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal item event: %w", err)
	}
	subject := itemSubject(b.eventsSubject, event.To)
	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish", err)
	}
	return nil
}

// SubscribeBatchProgress delivers progress updates for one batch until ctx
// is done. Malformed messages are logged and skipped.
func (b *Bus) SubscribeBatchProgress(ctx context.Context, batchID string, handler func(context.Context, domain.BatchProgress) error) error {
	if strings.TrimSpace(batchID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "subscribe progress", fmt.Errorf("batch id is required"))
	}
	sub, err := b.conn.Subscribe(progressSubject(b.progressPrefix, batchID), func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		progress, err := decodeProgress(batchID, msg.Data)
		if err != nil {
			slog.Warn("progress_message_invalid", "batch_id", batchID, "error", err.Error())
			return
		}
		if err := handler(ctx, progress); err != nil {
			slog.Error("progress_handler_failed", "batch_id", batchID, "error", err.Error())
		}
	})
	if err != nil {
		return wrapTemporaryIfNeeded("nats subscribe", fmt.Errorf("nats subscribe: %w", err))
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func itemSubject(base string, to domain.ItemStatus) string {
	if to == "" {
		return base
	}
	return base + "." + string(to)
}

func progressSubject(prefix, batchID string) string {
	return prefix + "." + batchID
}

func decodeProgress(batchID string, data []byte) (domain.BatchProgress, error) {
	var progress domain.BatchProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return domain.BatchProgress{}, fmt.Errorf("decode progress: %w", err)
	}
	if progress.BatchID == "" {
		progress.BatchID = batchID
	}
	if progress.BatchID != batchID {
		return domain.BatchProgress{}, fmt.Errorf("progress for batch %s on channel of %s", progress.BatchID, batchID)
	}
	if progress.Total < 0 || progress.Processed < 0 {
		return domain.BatchProgress{}, fmt.Errorf("negative progress counters")
	}
	return progress, nil
}
