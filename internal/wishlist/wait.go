package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrWaitExhausted is reported when a predicate never held within the allowed attempts.
var ErrWaitExhausted = errors.New("condition not met before retries ran out")

// Predicate checks whether an awaited page condition holds. Errors are
// treated as "not yet" and retried.
type Predicate func(ctx context.Context) (bool, error)

// Pace bounds how often and how many times a predicate is polled.
type Pace struct {
	Interval time.Duration
	Attempts int
}

// Watch polls a predicate in the background until it holds, the attempts run
// out, or Stop is called. Exactly one value is delivered on Done.
type Watch struct {
	done   chan error
	cancel context.CancelFunc
}

// WatchFor starts polling check. The first check runs immediately.
func WatchFor(ctx context.Context, name string, pace Pace, check Predicate) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{done: make(chan error, 1), cancel: cancel}

	interval := pace.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	attempts := pace.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	go func() {
		defer cancel()
		if err := poll(ctx, rate.NewLimiter(rate.Every(interval), 1), attempts, check); err != nil {
			w.done <- fmt.Errorf("%s: %w", name, err)
			return
		}
		w.done <- nil
	}()
	return w
}

func poll(ctx context.Context, lim *rate.Limiter, attempts int, check Predicate) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := lim.Wait(ctx); err != nil {
			// Wait also fails early when the deadline is shorter than the next token.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		ok, err := check(ctx)
		if ok {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrWaitExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrWaitExhausted, attempts)
}

// Done delivers nil once the predicate held, or the reason polling ended
// prefixed with the watch name.
func (w *Watch) Done() <-chan error { return w.done }

// Stop unsubscribes. It is safe to call more than once and after completion.
func (w *Watch) Stop() { w.cancel() }
