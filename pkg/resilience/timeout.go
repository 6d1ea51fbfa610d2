package resilience

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	val T
	err error
}

// WithTimeout runs fn under a deadline of timeout and returns its value.
// When the deadline or ctx wins, the zero T is returned and whatever fn
// eventually produces is dropped, so callers never observe a late write.
// A non-positive timeout calls fn directly on the caller's goroutine.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		return out.val, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}

// RunWithTimeout is WithTimeout for calls that produce no value.
func RunWithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := WithTimeout(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
