// Package wishlist implements the price sort augmentation for a store wishlist
// page: item classification, ordering, node reconciliation, the two stage
// reload handshake used to hand control back to native sorting, and the
// controller that wires all of it to a live page.
//
// The package never talks to a browser directly. Everything it needs from the
// host page is expressed by the Page interface; internal/browser/cdp provides
// a live implementation and internal/browser/snapshot an in-memory one.
package wishlist

import (
	"context"
	"errors"

	"github.com/xkilldash9x/wishsort/internal/config"
)

var (
	// ErrMissingContainer is returned when the listing container cannot be located.
	ErrMissingContainer = errors.New("wishlist container not found")
	// ErrPageReloaded is returned by Controller.Run after it navigated the page away.
	ErrPageReloaded = errors.New("page reload triggered")
	// ErrStoreUnavailable wraps any failure to read or write the session store.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrOrderMismatch is returned when a reorder does not cover exactly the scanned listings.
	ErrOrderMismatch = errors.New("ordered listings do not match scanned listings")
)

// Listing is a read-only view of one wishlist entry on the host page.
// Selectors are CSS selectors evaluated relative to the entry's root node.
type Listing interface {
	// Key identifies the node for the lifetime of one page load.
	Key() string
	// Text returns the rendered text of the first match, and whether a match exists.
	Text(selector string) (string, bool)
	// Present reports whether any element matches.
	Present(selector string) bool
	// Visible reports whether the first match exists and is actually rendered.
	Visible(selector string) bool
}

// Container is the parent node holding all listings.
type Container interface {
	// Listings returns the current listing nodes in document order.
	Listings(ctx context.Context) ([]Listing, error)
	// Reattach re-appends each listing to the container in the given order.
	// Nodes are moved, never recreated, and nodes not in the slice are untouched.
	Reattach(ctx context.Context, order []Listing) error
}

// SessionStore is the tab scoped key/value store that survives a reload.
type SessionStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Document is the part of the host page the sort and reload logic operate on.
type Document interface {
	// Container resolves the listing container or returns ErrMissingContainer.
	Container(ctx context.Context) (Container, error)
	// SetSuppressed hides (true) or reveals (false) the product list section.
	SetSuppressed(ctx context.Context, hidden bool) error
	// Reload performs a full page reload without changing the URL.
	Reload(ctx context.Context) error
	// Session returns the reload surviving store for this tab and origin.
	Session() SessionStore
}

// Surface is the part of the host page the controller injects into.
type Surface interface {
	// HeaderReady reports whether the trigger insertion point exists.
	HeaderReady(ctx context.Context) (bool, error)
	// MenuReady reports whether the native sort menu has been rendered.
	MenuReady(ctx context.Context) (bool, error)
	// AttachTrigger inserts the price sort control. It is idempotent and
	// returns false when the insertion point is missing.
	AttachTrigger(ctx context.Context, style config.TriggerStyle, label string) (bool, error)
	// WireNativeOptions subscribes to activations of native sort options that
	// are not yet marked as wired and returns how many were newly wired.
	WireNativeOptions(ctx context.Context) (int, error)
	// SetSortLabel replaces the sort menu's header text.
	SetSortLabel(ctx context.Context, label string) error
	// Events delivers user activations of injected and wired controls.
	Events() <-chan Event
}

// Page is one loaded instance of the host wishlist page.
type Page interface {
	Document
	Surface
}

// EventKind distinguishes user activations.
type EventKind int

const (
	// EventTrigger is an activation of the injected price sort control.
	EventTrigger EventKind = iota
	// EventNativeSort is an activation of one of the host page's sort options.
	EventNativeSort
)

func (k EventKind) String() string {
	switch k {
	case EventTrigger:
		return "trigger"
	case EventNativeSort:
		return "native_sort"
	default:
		return "unknown"
	}
}

// Event is a single user activation reported by the page.
type Event struct {
	Kind EventKind
	// Option is the label of the native option, when Kind is EventNativeSort.
	Option string
}

// Element identifiers and markers the augmentation writes into the page.
const (
	TriggerButtonID  = "sort-by-price-button"
	TriggerOptionID  = "sort-by-price"
	SortLabelID      = "sort-by-price-header"
	WiredMarkerAttr  = "data-price-sort-listener-added"
	TriggerItemClass = "_dropdown__item"
)
