package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

const (
	eventBuffer = 32
	// evalTimeout bounds a single helper evaluation.
	evalTimeout = 10 * time.Second
)

var _ wishlist.Page = (*Page)(nil)

// Page is a live wishlist tab. It outlives page loads: BeginLoad starts a new
// event stream for each document, and a navigation the page did not initiate
// closes the current one so the running controller returns.
type Page struct {
	ctx     context.Context
	cfg     config.WishlistConfig
	script  *script
	store   *SessionStorage
	logger  *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	events    chan wishlist.Event
	closed    bool
	expectNav bool
}

// NewPage binds to the tab in tabCtx and installs the event binding, which
// persists across navigations.
func NewPage(tabCtx context.Context, cfg config.WishlistConfig, logger *zap.Logger) (*Page, error) {
	s, err := newScript(cfg.Selectors)
	if err != nil {
		return nil, err
	}
	p := &Page{
		ctx:     tabCtx,
		cfg:     cfg,
		script:  s,
		logger:  logger.Named("page"),
		timeout: evalTimeout,
		events:  make(chan wishlist.Event, eventBuffer),
	}
	p.store = &SessionStorage{page: p}

	if err := chromedp.Run(tabCtx, chromedp.Expose(bindingName, p.onBinding)); err != nil {
		return nil, fmt.Errorf("failed to expose event binding: %w", err)
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if nav, ok := ev.(*cdppage.EventFrameNavigated); ok && nav.Frame.ParentID == "" {
			p.onNavigated(nav.Frame.URL)
		}
	})
	return p, nil
}

// onBinding runs on the chromedp event goroutine and must not block.
func (p *Page) onBinding(payload string) (string, error) {
	var msg struct {
		Kind   string `json:"kind"`
		Option string `json:"option"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", fmt.Errorf("malformed page event: %w", err)
	}

	ev := wishlist.Event{Kind: wishlist.EventTrigger}
	switch msg.Kind {
	case "trigger":
	case "native":
		ev = wishlist.Event{Kind: wishlist.EventNativeSort, Option: msg.Option}
	default:
		return "", fmt.Errorf("unknown page event %q", msg.Kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", nil
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("Page event dropped; controller is not keeping up.", zap.Stringer("kind", ev.Kind))
	}
	return "", nil
}

func (p *Page) onNavigated(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expectNav {
		p.expectNav = false
		return
	}
	p.logger.Debug("Page navigated.", zap.String("url", url))
	p.closeLocked()
}

func (p *Page) closeLocked() {
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

// BeginLoad starts a fresh event stream for the current document. Clicks
// queued on the previous document are discarded with the old channel.
func (p *Page) BeginLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	p.events = make(chan wishlist.Event, eventBuffer)
	p.closed = false
}

// Close ends the current event stream.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Page) Events() <-chan wishlist.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Navigate loads url and waits for the body.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.mu.Lock()
	p.expectNav = true
	p.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	p.logger.Debug("Navigating.", zap.String("url", url))
	runCtx, cancel := p.run(ctx)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// run derives a tab context that also ends when ctx does, so callers may pass
// contexts that do not carry the tab.
func (p *Page) run(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// eval evaluates a helper operation and decodes its JSON result into out.
func (p *Page) eval(ctx context.Context, out any, op string, args ...any) error {
	expr, err := p.script.call(op, args...)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	runCtx, stop := p.run(ctx)
	defer stop()

	var raw []byte
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &raw)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", op, err)
	}
	return nil
}

func (p *Page) Container(ctx context.Context) (wishlist.Container, error) {
	var found bool
	if err := p.eval(ctx, &found, "hasContainer"); err != nil {
		return nil, err
	}
	if !found {
		return nil, wishlist.ErrMissingContainer
	}
	return &container{page: p}, nil
}

func (p *Page) SetSuppressed(ctx context.Context, hidden bool) error {
	var ok bool
	if err := p.eval(ctx, &ok, "suppress", hidden); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("section %q not found", p.cfg.Selectors.Section)
	}
	return nil
}

// Reload reloads the document and waits for the new load.
func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.expectNav = true
	p.mu.Unlock()
	runCtx, cancel := p.run(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Reload())
}

func (p *Page) Session() wishlist.SessionStore { return p.store }

func (p *Page) HeaderReady(ctx context.Context) (bool, error) {
	var ok bool
	err := p.eval(ctx, &ok, "headerReady")
	return ok, err
}

func (p *Page) MenuReady(ctx context.Context) (bool, error) {
	var ok bool
	err := p.eval(ctx, &ok, "menuReady")
	return ok, err
}

func (p *Page) AttachTrigger(ctx context.Context, style config.TriggerStyle, label string) (bool, error) {
	op := "attachButton"
	switch style {
	case config.TriggerButton:
	case config.TriggerDropdown:
		op = "attachOption"
	default:
		return false, fmt.Errorf("unknown trigger style %q", style)
	}
	var ok bool
	err := p.eval(ctx, &ok, op, label)
	return ok, err
}

func (p *Page) WireNativeOptions(ctx context.Context) (int, error) {
	var n int
	err := p.eval(ctx, &n, "wireNative")
	return n, err
}

func (p *Page) SetSortLabel(ctx context.Context, label string) error {
	var ok bool
	if err := p.eval(ctx, &ok, "setLabel", label); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sort header %q not found", p.cfg.Selectors.MenuPointer)
	}
	return nil
}

// container is the live list. Listings are snapshotted in one round trip.
type container struct {
	page *Page
}

type match struct {
	Present bool    `json:"present"`
	Visible bool    `json:"visible"`
	Text    *string `json:"text"`
}

type scannedRow struct {
	Key     string           `json:"key"`
	Matches map[string]match `json:"matches"`
}

func (c *container) Listings(ctx context.Context) ([]wishlist.Listing, error) {
	sel := c.page.cfg.Selectors
	selectors := []string{sel.Title, sel.Price, sel.Discount, sel.SoonFlag, sel.TBABadge}

	var res struct {
		Found bool         `json:"found"`
		Rows  []scannedRow `json:"rows"`
	}
	if err := c.page.eval(ctx, &res, "scan", selectors); err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, wishlist.ErrMissingContainer
	}
	out := make([]wishlist.Listing, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = listing{row: r}
	}
	return out, nil
}

func (c *container) Reattach(ctx context.Context, order []wishlist.Listing) error {
	keys := make([]string, len(order))
	for i, l := range order {
		keys[i] = l.Key()
	}
	var res struct {
		Found   bool     `json:"found"`
		Missing []string `json:"missing"`
	}
	if err := c.page.eval(ctx, &res, "reattach", keys); err != nil {
		return err
	}
	if !res.Found {
		return wishlist.ErrMissingContainer
	}
	if len(res.Missing) > 0 {
		return fmt.Errorf("listings gone from the page: %s", strings.Join(res.Missing, ", "))
	}
	return nil
}

// listing answers queries from the values captured at scan time.
type listing struct {
	row scannedRow
}

func (l listing) Key() string { return l.row.Key }

func (l listing) Text(selector string) (string, bool) {
	p, ok := l.row.Matches[selector]
	if !ok || !p.Present || p.Text == nil {
		return "", false
	}
	return *p.Text, true
}

func (l listing) Present(selector string) bool { return l.row.Matches[selector].Present }

func (l listing) Visible(selector string) bool {
	p := l.row.Matches[selector]
	return p.Present && p.Visible
}

// SessionStorage is the tab's sessionStorage for the current origin.
type SessionStorage struct {
	page *Page
}

var errStorage = errors.New("sessionStorage rejected the operation")

type storageResult struct {
	OK    bool   `json:"ok"`
	Found bool   `json:"found"`
	Value string `json:"value"`
	Error string `json:"error"`
}

func (s *SessionStorage) do(ctx context.Context, op, key, value string) (storageResult, error) {
	var res storageResult
	if err := s.page.eval(ctx, &res, "storage", op, key, value); err != nil {
		return res, err
	}
	if !res.OK {
		return res, fmt.Errorf("%w: %s", errStorage, res.Error)
	}
	return res, nil
}

func (s *SessionStorage) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.do(ctx, "get", key, "")
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

func (s *SessionStorage) Set(ctx context.Context, key, value string) error {
	_, err := s.do(ctx, "set", key, value)
	return err
}

func (s *SessionStorage) Remove(ctx context.Context, key string) error {
	_, err := s.do(ctx, "remove", key, "")
	return err
}
