// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os/signal"
	"time"
)

// Context is cancelled on the first termination signal.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// Drain runs fn with a deadline of timeout and reports whether it finished
// in time. fn keeps running in the background when it does not.
func Drain(timeout time.Duration, fn func(ctx context.Context)) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
