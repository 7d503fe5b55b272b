package dispatch

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"sol-bundler-bot/internal/bundle"
)

// Transient reports whether an error is a network-layer failure worth
// retrying. Application-level rejections and signing failures are
// deterministic, retrying them only repeats the refusal.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bundle.ErrUpstreamUnavailable) || errors.Is(err, bundle.ErrRelayUnreachable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// backoffFor returns the pause before the retry following attempt k
// (1-based): doubling from one second, capped at five.
func backoffFor(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Retry runs fn up to maxAttempts times, backing off between attempts.
// Non-transient failures abort immediately.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	return retryWith(ctx, maxAttempts, fn, sleepCtx)
}

func retryWith(ctx context.Context, maxAttempts int, fn func() error, sleep func(context.Context, time.Duration) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !Transient(err) || attempt == maxAttempts {
			return err
		}
		if serr := sleep(ctx, backoffFor(attempt)); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
