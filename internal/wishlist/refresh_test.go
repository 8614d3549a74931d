package wishlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "gog_sort_fix_stage"

func TestPhaseStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := NewMemoryStore()
		ps := NewPhaseStore(store, testKey)

		phase, err := ps.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, PhaseNone, phase)

		require.NoError(t, ps.Save(ctx, PhaseAwaitingSecondPass))
		assert.Equal(t, map[string]string{testKey: "1"}, store.Snapshot())
		phase, err = ps.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, PhaseAwaitingSecondPass, phase)

		require.NoError(t, ps.Save(ctx, PhaseNone))
		assert.Empty(t, store.Snapshot())
	})

	t.Run("foreign value reads as none", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, testKey, "2"))
		phase, err := NewPhaseStore(store, testKey).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, PhaseNone, phase)
	})

	t.Run("unavailable store", func(t *testing.T) {
		store := NewMemoryStore()
		store.Err = errors.New("SecurityError: access denied")
		ps := NewPhaseStore(store, testKey)

		_, err := ps.Load(ctx)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, ps.Save(ctx, PhaseAwaitingSecondPass), ErrStoreUnavailable)

		_, err = NewPhaseStore(nil, testKey).Load(ctx)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func newMachine(page *fakePage) *StateMachine {
	return NewStateMachine(page, NewPhaseStore(page.Session(), testKey), 5*time.Millisecond, nil)
}

func TestStateMachine_FullHandshake(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Load 1: the user picks a native option after a price sort.
	page1 := newFakePage(exampleContainer(), store)
	m1 := newMachine(page1)
	plan := m1.Boot(ctx)
	assert.Equal(t, BootPlan{Reveal: true}, plan)
	assert.Equal(t, StateIdle, m1.State())

	require.True(t, m1.OnNativeSort(ctx, "Title"))
	assert.Equal(t, StateHidingForFirstReload, m1.State())
	suppressed, reloads := page1.snapshot()
	assert.True(t, suppressed)
	assert.Equal(t, 0, reloads, "reload waits for the delay")
	assert.Equal(t, map[string]string{testKey: "1"}, store.Snapshot())

	assert.ErrorIs(t, m1.FireReload(ctx), ErrPageReloaded)
	_, reloads = page1.snapshot()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, map[string]string{testKey: "1"}, store.Snapshot(), "first reload keeps the flag")

	// Load 2: the flag is observed, the list hidden and the flag cleared on the second reload.
	page2 := newFakePage(exampleContainer(), store)
	m2 := newMachine(page2)
	plan = m2.Boot(ctx)
	assert.True(t, plan.Reload)
	assert.Equal(t, 5*time.Millisecond, plan.ReloadAfter)
	assert.Equal(t, StateAwaitingSecondReload, m2.State())
	suppressed, _ = page2.snapshot()
	assert.True(t, suppressed)
	assert.False(t, m2.OnNativeSort(ctx, "Title"), "no new handshake while one is pending")

	assert.ErrorIs(t, m2.FireReload(ctx), ErrPageReloaded)
	_, reloads = page2.snapshot()
	assert.Equal(t, 1, reloads)
	assert.Empty(t, store.Snapshot())

	// Load 3: nothing persisted, back to idle.
	page3 := newFakePage(exampleContainer(), store)
	m3 := newMachine(page3)
	assert.Equal(t, BootPlan{Reveal: true}, m3.Boot(ctx))
	assert.Equal(t, StateIdle, m3.State())
}

func TestStateMachine_FireReloadWithoutPending(t *testing.T) {
	page := newFakePage(exampleContainer(), NewMemoryStore())
	m := newMachine(page)
	m.Boot(context.Background())

	err := m.FireReload(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPageReloaded)
	_, reloads := page.snapshot()
	assert.Equal(t, 0, reloads)
}

func TestStateMachine_StoreUnavailableOnBoot(t *testing.T) {
	store := NewMemoryStore()
	store.Err = errors.New("storage disabled")
	page := newFakePage(exampleContainer(), store)
	m := newMachine(page)

	plan := m.Boot(context.Background())
	assert.Equal(t, BootPlan{Reveal: true}, plan)
	assert.True(t, m.Disabled())
	assert.False(t, m.OnNativeSort(context.Background(), "Title"))

	suppressed, reloads := page.snapshot()
	assert.False(t, suppressed)
	assert.Equal(t, 0, reloads)
}

// failingSetStore reads fine but refuses writes, e.g. a full quota.
type failingSetStore struct{ *MemoryStore }

func (failingSetStore) Set(context.Context, string, string) error {
	return errors.New("QuotaExceededError")
}

func TestStateMachine_StoreWriteFailure(t *testing.T) {
	page := newFakePage(exampleContainer(), failingSetStore{NewMemoryStore()})
	m := newMachine(page)
	m.Boot(context.Background())

	assert.False(t, m.OnNativeSort(context.Background(), "Title"))
	assert.True(t, m.Disabled())
	assert.Equal(t, StateIdle, m.State())

	suppressed, reloads := page.snapshot()
	assert.False(t, suppressed, "the list must not stay hidden when no reload follows")
	assert.Equal(t, 0, reloads)
}

// failingRemoveStore keeps its entries; every removal is rejected.
type failingRemoveStore struct{ *MemoryStore }

func (failingRemoveStore) Remove(context.Context, string) error {
	return errors.New("SecurityError: storage is read-only")
}

func TestStateMachine_ClearFailureSkipsSecondReload(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(ctx, testKey, "1"))
	page := newFakePage(exampleContainer(), failingRemoveStore{inner})
	m := newMachine(page)

	require.True(t, m.Boot(ctx).Reload)
	require.NoError(t, m.FireReload(ctx), "an uncleared flag must not reload the page")

	suppressed, reloads := page.snapshot()
	assert.False(t, suppressed)
	assert.Equal(t, 0, reloads)
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, m.Disabled())
	assert.False(t, m.OnNativeSort(ctx, "Title"))
	assert.Equal(t, map[string]string{testKey: "1"}, inner.Snapshot())
}

func TestStateMachine_ReloadFailureAbandonsHandshake(t *testing.T) {
	ctx := context.Background()

	t.Run("first reload", func(t *testing.T) {
		store := NewMemoryStore()
		page := newFakePage(exampleContainer(), store)
		page.reloadErr = errors.New("net::ERR_INTERNET_DISCONNECTED")
		m := newMachine(page)
		m.Boot(ctx)

		require.True(t, m.OnNativeSort(ctx, "Title"))
		require.NoError(t, m.FireReload(ctx))

		suppressed, reloads := page.snapshot()
		assert.False(t, suppressed)
		assert.Equal(t, 0, reloads)
		assert.Empty(t, store.Snapshot(), "the flag must not outlive the abandoned handshake")
		assert.Equal(t, StateIdle, m.State())
		assert.True(t, m.Disabled())
	})

	t.Run("second reload", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, testKey, "1"))
		page := newFakePage(exampleContainer(), store)
		page.reloadErr = errors.New("net::ERR_TIMED_OUT")
		m := newMachine(page)

		require.True(t, m.Boot(ctx).Reload)
		require.NoError(t, m.FireReload(ctx))

		suppressed, _ := page.snapshot()
		assert.False(t, suppressed)
		assert.Empty(t, store.Snapshot())
		assert.Equal(t, StateIdle, m.State())
	})

	t.Run("cancelled context", func(t *testing.T) {
		page := newFakePage(exampleContainer(), NewMemoryStore())
		page.reloadErr = context.Canceled
		m := newMachine(page)
		m.Boot(ctx)
		require.True(t, m.OnNativeSort(ctx, "Title"))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, m.FireReload(cctx), context.Canceled)
	})
}

func TestMemoryStore_ZeroValue(t *testing.T) {
	ctx := context.Background()
	var s MemoryStore

	_, ok, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, testKey, "1"))
	v, ok, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Remove(ctx, testKey))
	assert.Empty(t, s.Snapshot())
}
