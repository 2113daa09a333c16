package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy retries transient and blocked outcomes with growing delays.
// Transient failures back off exponentially, blocked pages linearly from a
// larger base. Permanent failures are returned at once.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	BlockedDelay time.Duration
	Jitter       float64
	Sleep        SleepFunc
	Metrics      *Metrics
}

// NewRetryPolicy builds a policy from cfg.
func NewRetryPolicy(cfg *config.Config, metrics *Metrics) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    cfg.RetryBackoff,
		MaxDelay:     cfg.RetryBackoffMax,
		BlockedDelay: cfg.BlockedBackoff,
		Jitter:       cfg.Jitter,
		Sleep:        SleepContext,
		Metrics:      metrics,
	}
}

// Do runs attempt until it succeeds, fails permanently, or runs out of attempts.
// The returned outcome carries the number of attempts made.
func (p *RetryPolicy) Do(ctx context.Context, attempt func(context.Context) Outcome) Outcome {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for n := 1; ; n++ {
		out := attempt(ctx)
		out.Attempts = n
		if out.Kind == Success || out.Kind == Permanent {
			return out
		}
		if n >= maxAttempts {
			slog.Warn("giving up on request",
				slog.String("url", out.URL),
				slog.String("outcome", out.Kind.String()),
				slog.Int("attempts", n),
				slog.Any("error", out.Err),
			)
			return out
		}

		delay := p.Delay(out.Kind, n)
		p.Metrics.IncRetries(out.Kind.String())
		slog.Warn("retrying request",
			slog.String("url", out.URL),
			slog.String("outcome", out.Kind.String()),
			slog.Int("attempt", n),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", out.Err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			out.Kind = Permanent
			out.Err = fmt.Errorf("%w while waiting to retry: %v", err, out.Err)
			return out
		}
	}
}

// Delay returns the wait before the retry that follows failed attempt n.
func (p *RetryPolicy) Delay(kind Kind, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}

	var delay time.Duration
	if kind == Blocked {
		delay = p.BlockedDelay * time.Duration(attempt)
	} else {
		delay = p.BaseDelay * time.Duration(1<<(attempt-1))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 && delay > 0 {
		delay = time.Duration(float64(delay) * (1 + p.Jitter*(2*rand.Float64()-1)))
	}
	return delay
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return SleepContext(ctx, d)
	}
	return p.Sleep(ctx, d)
}
