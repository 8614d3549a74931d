package wishlist

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fastPace = Pace{Interval: time.Millisecond, Attempts: 20}

// waitFor blocks until check holds or polling ends.
func waitFor(ctx context.Context, pace Pace, check Predicate) error {
	w := WatchFor(ctx, "wait", pace, check)
	defer w.Stop()
	return <-w.Done()
}

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	err := waitFor(context.Background(), fastPace, func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	err := waitFor(context.Background(), fastPace, func(context.Context) (bool, error) {
		return calls.Add(1) == 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestWaitFor_Exhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	err := waitFor(context.Background(), Pace{Interval: time.Millisecond, Attempts: 3},
		func(context.Context) (bool, error) {
			calls.Add(1)
			return false, errors.New("not rendered")
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitExhausted)
	assert.Contains(t, err.Error(), "not rendered")
	assert.True(t, strings.HasPrefix(err.Error(), "wait: "), err.Error())
	assert.Equal(t, int32(3), calls.Load())
}

func TestWatch_Stop(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := WatchFor(context.Background(), "header", Pace{Interval: 10 * time.Millisecond, Attempts: 1000},
		func(context.Context) (bool, error) { return false, nil })

	w.Stop()
	select {
	case err := <-w.Done():
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "header")
	case <-time.After(time.Second):
		t.Fatal("watch did not end after Stop")
	}
	w.Stop()
}

func TestWatch_ParentCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	w := WatchFor(ctx, "menu", Pace{Interval: 10 * time.Millisecond, Attempts: 1000},
		func(context.Context) (bool, error) { return false, nil })
	cancel()

	select {
	case err := <-w.Done():
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not end after cancel")
	}
}

func TestWatchFor_NormalizesPace(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	w := WatchFor(context.Background(), "zero", Pace{}, func(context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	})
	err := <-w.Done()
	assert.ErrorIs(t, err, ErrWaitExhausted)
	assert.Equal(t, int32(1), calls.Load(), "a zero pace still checks once")
}
