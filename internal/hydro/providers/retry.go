package providers

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

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

// RetryPolicy retries transient failures with exponential backoff.
// Retries and Backoff are read from settings at the start of every Do.
type RetryPolicy struct {
	settings hydro.SettingsSource
	sleep    SleepFunc
	logger   *slog.Logger
}

func NewRetryPolicy(settings hydro.SettingsSource, logger *slog.Logger) *RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryPolicy{
		settings: settings,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// WithSleep replaces the wait between attempts.
func (p *RetryPolicy) WithSleep(fn SleepFunc) *RetryPolicy {
	cp := *p
	cp.sleep = fn
	return &cp
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// configured number of attempts is used up. The last error is returned as is.
func (p *RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	s := p.settings.Current()
	attempts := s.Retries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !hydro.IsTransient(err) || attempt >= attempts {
			return err
		}

		wait := Backoff(s.Backoff, attempt)
		p.logger.Warn("retrying call",
			"source", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"wait", wait,
			"error", err,
		)
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

// maxBackoff is the largest wait Backoff returns.
const maxBackoff = time.Duration(math.MaxInt64)

// Backoff is the wait after the given failed attempt: base * 2^(attempt-1),
// saturating at maxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	shift := uint(attempt - 1)
	if shift >= 63 || base > maxBackoff>>shift {
		return maxBackoff
	}
	return base << shift
}
