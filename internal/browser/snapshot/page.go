// Package snapshot implements wishlist.Page over a parsed HTML document held
// in memory. It backs the offline sort command and lets the controller be
// exercised end to end without a browser.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

// ErrClosed is returned by simulated clicks after the page was closed or reloaded.
var ErrClosed = errors.New("snapshot page closed")

const eventBuffer = 64

var _ wishlist.Page = (*Page)(nil)

// Page is one load of a wishlist document. DOM reads take a shared lock and
// mutations an exclusive one, so readiness watches may poll concurrently
// with the controller.
type Page struct {
	mu     sync.RWMutex
	doc    *goquery.Document
	sel    config.SelectorConfig
	store  wishlist.SessionStore
	logger *zap.Logger

	events  chan wishlist.Event
	closed  bool
	reloads int
}

// Parse reads an HTML document into a new page. store may be shared between
// successive loads to model a reload surviving session store.
func Parse(r io.Reader, cfg config.WishlistConfig, store wishlist.SessionStore, logger *zap.Logger) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wishlist document: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{
		doc:    doc,
		sel:    cfg.Selectors,
		store:  store,
		logger: logger.Named("snapshot"),
		events: make(chan wishlist.Event, eventBuffer),
	}, nil
}

// Container resolves the configured occurrence of the list element.
func (p *Page) Container(context.Context) (wishlist.Container, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := p.doc.Find(p.sel.List).Eq(p.sel.ListInner)
	if list.Length() == 0 {
		return nil, wishlist.ErrMissingContainer
	}
	return &container{page: p, node: list.Nodes[0]}, nil
}

// SetSuppressed toggles the visibility of the product list section.
func (p *Page) SetSuppressed(_ context.Context, hidden bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	section := p.doc.Find(p.sel.Section)
	if section.Length() == 0 {
		return fmt.Errorf("section %q not found", p.sel.Section)
	}
	if hidden {
		setStyle(section.First(), declaration{"opacity", "0"}, declaration{"pointer-events", "none"})
	} else {
		setStyle(section.First(), declaration{"opacity", "1"}, declaration{"pointer-events", "auto"})
	}
	return nil
}

// Suppressed reports whether the product list section is currently hidden.
func (p *Page) Suppressed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return styleValue(p.doc.Find(p.sel.Section).First(), "opacity") == "0"
}

// Reload records the navigation and ends this load: the event stream is
// closed and further clicks fail.
func (p *Page) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	p.closeLocked()
	p.logger.Debug("Simulated reload.", zap.Int("reloads", p.reloads))
	return nil
}

// Reloads returns how many times Reload was called on this load.
func (p *Page) Reloads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reloads
}

func (p *Page) Session() wishlist.SessionStore { return p.store }

// HeaderReady reports whether a trigger insertion point exists.
func (p *Page) HeaderReady(context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.triggerTarget().Length() > 0, nil
}

// MenuReady reports whether the native sort menu is present.
func (p *Page) MenuReady(context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Find(p.sel.Menu).Length() > 0, nil
}

// triggerTarget picks where the button goes. On someone else's public
// wishlist the first header carries the foreign marker and the collection
// header is used instead of the last header.
func (p *Page) triggerTarget() *goquery.Selection {
	headers := p.doc.Find(p.sel.Header)
	if headers.Length() == 0 {
		return headers
	}
	if p.sel.ForeignMarker != "" && strings.Contains(headers.First().Text(), p.sel.ForeignMarker) {
		return p.doc.Find(p.sel.CollectionHeader).First()
	}
	return headers.Last()
}

// AttachTrigger inserts the price sort control once.
func (p *Page) AttachTrigger(_ context.Context, style config.TriggerStyle, label string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch style {
	case config.TriggerButton:
		if p.doc.Find("#"+wishlist.TriggerButtonID).Length() > 0 {
			return true, nil
		}
		target := p.triggerTarget()
		if target.Length() == 0 {
			return false, nil
		}
		target.AppendHtml(fmt.Sprintf(`<button id="%s">%s</button>`, wishlist.TriggerButtonID, html.EscapeString(label)))
	case config.TriggerDropdown:
		if p.doc.Find("#"+wishlist.TriggerOptionID).Length() > 0 {
			return true, nil
		}
		menu := p.doc.Find(p.sel.Menu).First()
		if menu.Length() == 0 {
			return false, nil
		}
		menu.AppendHtml(fmt.Sprintf(`<span id="%s" class="%s">%s</span>`,
			wishlist.TriggerOptionID, wishlist.TriggerItemClass, html.EscapeString(label)))
	default:
		return false, fmt.Errorf("unknown trigger style %q", style)
	}
	return true, nil
}

// WireNativeOptions marks every native option that is not yet wired.
func (p *Page) WireNativeOptions(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wired := 0
	p.doc.Find(p.sel.MenuItem).Each(func(_ int, item *goquery.Selection) {
		if id, _ := item.Attr("id"); id == wishlist.TriggerOptionID {
			return
		}
		if _, ok := item.Attr(wishlist.WiredMarkerAttr); ok {
			return
		}
		item.SetAttr(wishlist.WiredMarkerAttr, "true")
		wired++
	})
	return wired, nil
}

// SetSortLabel hides the native header labels and shows label instead.
func (p *Page) SetSortLabel(_ context.Context, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pointer := p.doc.Find(p.sel.MenuPointer).First()
	if pointer.Length() == 0 {
		return fmt.Errorf("sort header %q not found", p.sel.MenuPointer)
	}
	setStyle(p.doc.Find(p.sel.MenuLabel), declaration{"display", "none"})

	header := p.doc.Find("#" + wishlist.SortLabelID)
	if header.Length() == 0 {
		pointer.PrependHtml(fmt.Sprintf(`<span id="%s" class=""></span>`, wishlist.SortLabelID))
		header = p.doc.Find("#" + wishlist.SortLabelID)
	}
	header.SetText(label)
	setStyle(header, declaration{"display", "inline-block"})
	return nil
}

// SortLabel returns the text of the injected sort header, if any.
func (p *Page) SortLabel() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	header := p.doc.Find("#" + wishlist.SortLabelID)
	if header.Length() == 0 {
		return "", false
	}
	return header.Text(), true
}

func (p *Page) Events() <-chan wishlist.Event { return p.events }

// ClickTrigger simulates the user activating the injected control.
func (p *Page) ClickTrigger() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.doc.Find("#"+wishlist.TriggerButtonID+", #"+wishlist.TriggerOptionID).Length() == 0 {
		return errors.New("price sort trigger not attached")
	}
	return p.emitLocked(wishlist.Event{Kind: wishlist.EventTrigger})
}

// ClickNativeOption simulates the user choosing the native option labelled
// label. Only wired options notify the controller; the returned bool reports
// whether an event was emitted.
func (p *Page) ClickNativeOption(label string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var match *goquery.Selection
	p.doc.Find(p.sel.MenuItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if id, _ := item.Attr("id"); id != wishlist.TriggerOptionID && strings.TrimSpace(item.Text()) == label {
			match = item
			return false
		}
		return true
	})
	if match == nil {
		return false, fmt.Errorf("native sort option %q not found", label)
	}
	if _, ok := match.Attr(wishlist.WiredMarkerAttr); !ok {
		return false, nil
	}
	return true, p.emitLocked(wishlist.Event{Kind: wishlist.EventNativeSort, Option: label})
}

func (p *Page) emitLocked(ev wishlist.Event) error {
	if p.closed {
		return ErrClosed
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropped %s", ev.Kind)
	}
}

// Close ends the event stream, which makes a running controller return.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Page) closeLocked() {
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

// Render writes the current document as HTML.
func (p *Page) Render(w io.Writer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, n := range p.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
	}
	return nil
}
