package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// ChainClassifier tries its strategies in order and returns the first
// successful result. Every attempt is recorded in the decision log.
type ChainClassifier struct {
	strategies []ports.ClassificationStrategy
	observer   ports.PipelineObserver
	now        func() time.Time
}

func NewChainClassifier(observer ports.PipelineObserver, strategies ...ports.ClassificationStrategy) *ChainClassifier {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &ChainClassifier{
		strategies: strategies,
		observer:   observer,
		now:        time.Now,
	}
}

func (c *ChainClassifier) Classify(ctx context.Context, file domain.FileSource) (*domain.ClassificationResult, error) {
	if len(c.strategies) == 0 {
		return nil, &domain.ClassificationFailedError{Causes: []error{errors.New("no classification strategy configured")}}
	}

	var (
		causes []error
		steps  []domain.DecisionStep
	)
	for _, strategy := range c.strategies {
		started := c.now()
		result, err := strategy.Classify(ctx, file)
		step := domain.DecisionStep{
			Step:     strategy.Name(),
			At:       started.UTC(),
			Duration: c.now().Sub(started),
		}
		if err != nil {
			step.Error = err.Error()
			steps = append(steps, step)
			causes = append(causes, fmt.Errorf("%s: %w", strategy.Name(), err))
			slog.Warn("classification_strategy_failed",
				"strategy", strategy.Name(),
				"file", file.Name(),
				"error", err.Error(),
			)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("classify %s: %w", file.Name(), ctxErr)
			}
			continue
		}

		step.Confidence = result.Confidence
		steps = append(steps, step)
		c.finish(result, strategy.Name(), steps)
		return result, nil
	}
	return nil, &domain.ClassificationFailedError{Causes: causes}
}

func (c *ChainClassifier) finish(result *domain.ClassificationResult, strategy string, steps []domain.DecisionStep) {
	result.DecisionLog = append(steps, result.DecisionLog...)
	if result.Provider == "" {
		result.Provider = strategy
	}
	band := result.Band()
	if band == domain.BandLow {
		result.RequiresConfirmation = true
	}
	result.AvailableParsers = unionParsers(result.AvailableParsers, domain.RegisteredParsers())
	c.observer.Classified(result.Provider, band)
}

func unionParsers(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
