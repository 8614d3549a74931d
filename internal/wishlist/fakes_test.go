package wishlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/wishsort/internal/config"
)

// testConfig returns the default wishlist configuration with fast timings.
func testConfig() config.WishlistConfig {
	cfg := config.NewDefaultConfig().Wishlist()
	cfg.ReloadDelay = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollAttempts = 50
	return cfg
}

var sel = testConfig().Selectors

// fakeListing is an in-memory Listing keyed by selector.
type fakeListing struct {
	key     string
	text    map[string]string
	present map[string]bool
	hidden  map[string]bool
}

func newListing(key string) *fakeListing {
	return &fakeListing{key: key, text: map[string]string{}, present: map[string]bool{}, hidden: map[string]bool{}}
}

func (l *fakeListing) withText(selector, text string) *fakeListing {
	l.text[selector] = text
	l.present[selector] = true
	return l
}

func (l *fakeListing) with(selector string) *fakeListing {
	l.present[selector] = true
	return l
}

func (l *fakeListing) withHidden(selector string) *fakeListing {
	l.present[selector] = true
	l.hidden[selector] = true
	return l
}

func (l *fakeListing) Key() string { return l.key }

func (l *fakeListing) Text(selector string) (string, bool) {
	v, ok := l.text[selector]
	return v, ok
}

func (l *fakeListing) Present(selector string) bool { return l.present[selector] }

func (l *fakeListing) Visible(selector string) bool {
	return l.present[selector] && !l.hidden[selector]
}

// priced builds a listing titled key with a standard price.
func priced(key, price string) *fakeListing {
	return newListing(key).withText(sel.Title, key).withText(sel.Price, price)
}

// tba builds a listing titled key with a visible TBA badge and no price.
func tba(key string) *fakeListing {
	return newListing(key).withText(sel.Title, key).with(sel.TBABadge)
}

// fakeContainer mimics appendChild: reattaching an attached node moves it to the end.
type fakeContainer struct {
	mu        sync.Mutex
	nodes     []Listing
	reattachs int
	listErr   error
}

func newContainer(nodes ...Listing) *fakeContainer {
	return &fakeContainer{nodes: nodes}
}

func (c *fakeContainer) Listings(context.Context) ([]Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]Listing(nil), c.nodes...), nil
}

func (c *fakeContainer) Reattach(_ context.Context, order []Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reattachs++
	for _, n := range order {
		idx := -1
		for i, m := range c.nodes {
			if m.Key() == n.Key() {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("node %q is not a child", n.Key())
		}
		c.nodes = append(append(c.nodes[:idx:idx], c.nodes[idx+1:]...), n)
	}
	return nil
}

func (c *fakeContainer) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.Key()
	}
	return out
}

// fakePage is a scriptable Page.
type fakePage struct {
	mu         sync.Mutex
	container  *fakeContainer
	store      SessionStore
	suppressed bool
	history    []bool
	reloads    int
	reloadErr  error // returned by Reload instead of navigating

	headerReady bool
	menuReady   bool
	attachMiss  int // number of AttachTrigger calls reporting a missing insertion point
	attached    map[config.TriggerStyle]bool
	wired       bool
	wireCalls   int
	noOptions   bool // the menu exists but its options are not rendered yet
	labels      []string

	events chan Event
}

func newFakePage(c *fakeContainer, store SessionStore) *fakePage {
	return &fakePage{
		container:   c,
		store:       store,
		headerReady: true,
		menuReady:   true,
		attached:    map[config.TriggerStyle]bool{},
		events:      make(chan Event, 16),
	}
}

func (p *fakePage) Container(context.Context) (Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.container == nil {
		return nil, ErrMissingContainer
	}
	return p.container, nil
}

func (p *fakePage) SetSuppressed(_ context.Context, hidden bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppressed = hidden
	p.history = append(p.history, hidden)
	return nil
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reloadErr != nil {
		return p.reloadErr
	}
	p.reloads++
	return nil
}

func (p *fakePage) Session() SessionStore { return p.store }

func (p *fakePage) HeaderReady(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headerReady, nil
}

func (p *fakePage) MenuReady(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.menuReady, nil
}

func (p *fakePage) AttachTrigger(_ context.Context, style config.TriggerStyle, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachMiss > 0 {
		p.attachMiss--
		return false, nil
	}
	p.attached[style] = true
	return true, nil
}

func (p *fakePage) WireNativeOptions(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wireCalls++
	if p.wired || p.noOptions {
		return 0, nil
	}
	p.wired = true
	return 3, nil
}

func (p *fakePage) SetSortLabel(_ context.Context, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = append(p.labels, label)
	return nil
}

func (p *fakePage) Events() <-chan Event { return p.events }

func (p *fakePage) snapshot() (suppressed bool, reloads int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suppressed, p.reloads
}

func (p *fakePage) isWired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wired
}

func (p *fakePage) isAttached(style config.TriggerStyle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached[style]
}

func (p *fakePage) renderOptions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noOptions = false
}

func (p *fakePage) wireAttempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wireCalls
}
