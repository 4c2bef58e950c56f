package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error that further attempts cannot fix; Do returns
// the wrapped error immediately instead of retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Do runs op up to attempts times, doubling the delay between attempts.
// The op must be safe to repeat; no deduplication happens here.
func Do[T any](ctx context.Context, attempts int, baseDelay time.Duration, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		slog.Warn("operation failed, retrying", "label", label, "attempt", attempt, "max_attempts", attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", label, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, attempts, lastErr)
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, attempts int, baseDelay time.Duration, label string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, attempts, baseDelay, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
