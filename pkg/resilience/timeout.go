package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline named after op. It returns once the
// deadline passes even if fn has not; fn observes the cancellation through
// its context, and context.Cause on that context names op.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	cause := fmt.Errorf("%s exceeded %v: %w", op, limit, context.DeadlineExceeded)
	tctx, cancel := context.WithTimeoutCause(ctx, limit, cause)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()
	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return context.Cause(tctx)
	}
}
