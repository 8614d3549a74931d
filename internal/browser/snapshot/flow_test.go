package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

func run(ctx context.Context, c *wishlist.Controller) <-chan error {
	out := make(chan error, 1)
	go func() { out <- c.Run(ctx) }()
	return out
}

func await(t *testing.T, out <-chan error) error {
	t.Helper()
	select {
	case err := <-out:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not return")
		return nil
	}
}

func (p *Page) sectionOpacity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return styleValue(p.doc.Find(p.sel.Section).First(), "opacity")
}

func TestFlow_PriceSortThenNativeAcrossReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	site, err := LoadSite("testdata/wishlist.html", cfg, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Load 1.
	p1, err := site.Open()
	require.NoError(t, err)
	out := run(ctx, wishlist.NewController(cfg, p1, nil))

	require.Eventually(t, func() bool { return p1.ClickTrigger() == nil }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return titles(t, p1)[0] == "Bravo" }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Bravo", "Delta", "Alpha", "Echo", "Charlie", "Foxtrot"}, titles(t, p1))

	require.Eventually(t, func() bool {
		emitted, err := p1.ClickNativeOption("Title")
		return err == nil && emitted
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, await(t, out), wishlist.ErrPageReloaded)
	assert.Equal(t, 1, p1.Reloads())
	assert.True(t, p1.Suppressed())
	snap := site.Store().(*wishlist.MemoryStore).Snapshot()
	assert.Equal(t, map[string]string{cfg.StorageKey: "1"}, snap)

	// Load 2.
	p2, err := site.Open()
	require.NoError(t, err)
	assert.ErrorIs(t, await(t, run(ctx, wishlist.NewController(cfg, p2, nil))), wishlist.ErrPageReloaded)
	assert.Equal(t, 1, p2.Reloads())
	assert.True(t, p2.Suppressed())
	assert.Error(t, p2.ClickTrigger(), "nothing injected while the second reload is owed")
	assert.Empty(t, site.Store().(*wishlist.MemoryStore).Snapshot())

	// Load 3.
	p3, err := site.Open()
	require.NoError(t, err)
	c3 := wishlist.NewController(cfg, p3, nil)
	out = run(ctx, c3)
	require.Eventually(t, func() bool { return p3.sectionOpacity() == "1" }, time.Second, time.Millisecond)
	p3.Close()
	require.NoError(t, await(t, out))

	assert.Equal(t, 0, p3.Reloads())
	assert.Equal(t, wishlist.StateIdle, c3.Machine().State())
	assert.Equal(t, wishlist.NativeOrUnknown, c3.Engine().State().Provenance)
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"}, titles(t, p3))
	assert.Equal(t, 3, site.Loads())
}

func TestFlow_DropdownLabel(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.Trigger = config.TriggerDropdown
	site, err := LoadSite("testdata/wishlist.html", cfg, nil, nil)
	require.NoError(t, err)
	p, err := site.Open()
	require.NoError(t, err)
	out := run(context.Background(), wishlist.NewController(cfg, p, nil))

	require.Eventually(t, func() bool { return p.ClickTrigger() == nil }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		label, ok := p.SortLabel()
		return ok && label == cfg.Labels.Option
	}, time.Second, time.Millisecond)
	p.Close()
	require.NoError(t, await(t, out))
}
