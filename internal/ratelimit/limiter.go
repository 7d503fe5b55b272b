package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter grants a fixed number of slots per rolling window. Callers that
// find the current window exhausted wait out the remainder of the window
// before the counter resets. A single instance is shared by every dispatch
// path so the cap is global.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time

	now func() time.Time
}

func New(limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 {
		return nil, errors.New("rate limit must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("rate window must be > 0")
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

// Acquire blocks until a submission slot is available, then consumes it.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count < l.limit {
		l.count++
		return 0, true
	}
	return l.window - now.Sub(l.windowStart), false
}
