package ports

import (
	"context"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// ItemEventPublisher fans out item status transitions.
type ItemEventPublisher interface {
	PublishItemEvent(ctx context.Context, event domain.ItemEvent) error
}

// ProgressSubscriber consumes the passive batch progress channel.
type ProgressSubscriber interface {
	SubscribeBatchProgress(ctx context.Context, batchID string, handler func(context.Context, domain.BatchProgress) error) error
}

// PipelineObserver receives pipeline measurements.
type PipelineObserver interface {
	ItemTransition(from, to domain.ItemStatus)
	Classified(provider string, band domain.ConfidenceBand)
	ChunkUploaded(bytes int64)
	OCRPolled(outcome string)
	SaveFinished(duration time.Duration, err error)
}

type NopObserver struct{}

func (NopObserver) ItemTransition(domain.ItemStatus, domain.ItemStatus) {}
func (NopObserver) Classified(string, domain.ConfidenceBand)            {}
func (NopObserver) ChunkUploaded(int64)                                 {}
func (NopObserver) OCRPolled(string)                                    {}
func (NopObserver) SaveFinished(time.Duration, error)                   {}

type NopPublisher struct{}

func (NopPublisher) PublishItemEvent(context.Context, domain.ItemEvent) error { return nil }
