package gateway

import (
	"context"
	"time"
)

// WithBackoff runs fn, retrying with exponential backoff while it keeps
// returning transient errors. Permanent errors (declines, timeouts) are
// returned immediately. Context cancellation wins over remaining attempts.
func WithBackoff(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
