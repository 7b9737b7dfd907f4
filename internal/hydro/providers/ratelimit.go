package providers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// RateLimiter paces outbound calls to one source. Every caller sharing the
// limiter is serialized through the same token bucket (burst 1), and the
// configured rate is re-read on every Acquire.
type RateLimiter struct {
	settings hydro.SettingsSource

	mu      sync.Mutex
	limiter *rate.Limiter
	current float64
}

func NewRateLimiter(settings hydro.SettingsSource) *RateLimiter {
	return &RateLimiter{settings: settings}
}

// Acquire blocks until the next call is allowed or ctx is done.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	perSecond := l.settings.Current().RateLimit

	l.mu.Lock()
	if l.limiter == nil {
		l.limiter = rate.NewLimiter(limitFor(perSecond), 1)
		l.current = perSecond
	} else if perSecond != l.current {
		l.limiter.SetLimit(limitFor(perSecond))
		l.current = perSecond
	}
	lim := l.limiter
	l.mu.Unlock()

	return lim.Wait(ctx)
}

func limitFor(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Limiters hands out one shared RateLimiter per source name.
type Limiters struct {
	settings hydro.SettingsSource

	mu sync.Mutex
	m  map[string]*RateLimiter
}

func NewLimiters(settings hydro.SettingsSource) *Limiters {
	return &Limiters{settings: settings, m: make(map[string]*RateLimiter)}
}

// For returns the limiter for name, creating it on first use.
func (l *Limiters) For(name string) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.m[name]
	if !ok {
		rl = NewRateLimiter(l.settings)
		l.m[name] = rl
	}
	return rl
}
