package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/retry"
)

// SourceLimiter enforces a minimum delay between requests to the same source.
// Every page and detail request an adapter makes goes through Wait.
type SourceLimiter struct {
	mu        sync.Mutex
	limiters  map[model.Source]*rate.Limiter
	minDelay  time.Duration
	overrides map[model.Source]time.Duration
}

// NewSourceLimiter creates a limiter that spaces requests to one source by
// minDelay, or by the per-source override when one is configured.
func NewSourceLimiter(minDelay time.Duration, overrides map[model.Source]time.Duration) *SourceLimiter {
	return &SourceLimiter{
		limiters:  make(map[model.Source]*rate.Limiter),
		minDelay:  minDelay,
		overrides: overrides,
	}
}

// DelayFor returns the effective spacing for a source.
func (l *SourceLimiter) DelayFor(src model.Source) time.Duration {
	if d, ok := l.overrides[src]; ok {
		return d
	}
	return l.minDelay
}

func (l *SourceLimiter) limiter(src model.Source) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[src]
	if !ok {
		// Burst of one: the first request goes out immediately, later ones are spaced.
		lim = rate.NewLimiter(rate.Every(l.DelayFor(src)), 1)
		l.limiters[src] = lim
	}
	return lim
}

// Wait blocks until a request to src is allowed.
// It fails if ctx ends first or its deadline is too close for the next slot;
// either error is marked permanent so callers do not retry it.
func (l *SourceLimiter) Wait(ctx context.Context, src model.Source) error {
	if l == nil {
		return nil
	}
	if err := l.limiter(src).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return retry.Permanent(fmt.Errorf("rate limiter wait for %s: %w", src, err))
	}
	return nil
}
