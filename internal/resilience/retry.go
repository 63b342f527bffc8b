package resilience

import (
	"context"
	"errors"
	"time"
)

// Retry runs fn up to attempts times, retrying only when the returned
// error matches retryable (via errors.Is) and backing off linearly
// between attempts. It respects context cancellation between attempts
// and returns the last error when all attempts are exhausted.
func Retry(ctx context.Context, attempts int, backoff time.Duration, retryable error, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, retryable) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return err
}
