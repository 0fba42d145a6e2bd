package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// OCRPollPolicy bounds the wait for one OCR job. Whichever of MaxAttempts and
// MaxWait is reached first ends the wait as a timeout.
type OCRPollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxWait     time.Duration
}

func DefaultOCRPollPolicy() OCRPollPolicy {
	return OCRPollPolicy{
		Interval:    2 * time.Second,
		MaxAttempts: 90,
		MaxWait:     3 * time.Minute,
	}
}

// OCRPoller re-polls a job at a fixed interval until it resolves or the
// budget runs out.
type OCRPoller struct {
	api      ports.OCRAPI
	policy   OCRPollPolicy
	observer ports.PipelineObserver
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewOCRPoller(api ports.OCRAPI, policy OCRPollPolicy, observer ports.PipelineObserver) *OCRPoller {
	defaults := DefaultOCRPollPolicy()
	if policy.Interval <= 0 {
		policy.Interval = defaults.Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.MaxWait <= 0 {
		policy.MaxWait = defaults.MaxWait
	}
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &OCRPoller{
		api:      api,
		policy:   policy,
		observer: observer,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Wait polls jobID until it is done or failed. The wall-clock budget is
// measured from startedAt; onAttempt is called after every poll.
func (p *OCRPoller) Wait(ctx context.Context, jobID string, startedAt time.Time, onAttempt func(attempt int)) ([]domain.OCRDocument, error) {
	for attempt := 1; ; attempt++ {
		job, err := p.api.GetOCRJob(ctx, jobID)
		if onAttempt != nil {
			onAttempt(attempt)
		}
		switch {
		case err != nil && !domain.IsKind(err, domain.ErrTemporary):
			p.observer.OCRPolled("error")
			return nil, fmt.Errorf("poll ocr job %s: %w", jobID, err)
		case err != nil:
			p.observer.OCRPolled("retry")
			slog.Warn("ocr_poll", "job_id", jobID, "attempt", attempt, "error", err.Error())
		case job.Status == domain.OCRDone:
			p.observer.OCRPolled(string(domain.OCRDone))
			return job.Documents, nil
		case job.Status == domain.OCRFailed:
			p.observer.OCRPolled(string(domain.OCRFailed))
			reason := job.Error
			if reason == "" {
				reason = "no reason given"
			}
			return nil, domain.WrapError(domain.ErrOCRJobFailed, "poll ocr job", fmt.Errorf("job %s: %s", jobID, reason))
		default:
			p.observer.OCRPolled(string(domain.OCRPending))
			slog.Debug("ocr_poll", "job_id", jobID, "attempt", attempt, "status", job.Status)
		}

		if attempt >= p.policy.MaxAttempts {
			return nil, p.timeout(jobID, fmt.Sprintf("%d attempts", attempt))
		}
		if err := p.sleep(ctx, p.policy.Interval); err != nil {
			return nil, fmt.Errorf("poll ocr job %s: %w", jobID, err)
		}
		if elapsed := p.now().Sub(startedAt); elapsed >= p.policy.MaxWait {
			return nil, p.timeout(jobID, elapsed.Round(time.Second).String())
		}
	}
}

func (p *OCRPoller) timeout(jobID, spent string) error {
	p.observer.OCRPolled("timeout")
	return domain.WrapError(domain.ErrOCRJobTimeout, "poll ocr job", fmt.Errorf("job %s unresolved after %s", jobID, spent))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
