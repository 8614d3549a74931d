package wishlist

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Direction is the order in which priced listings are arranged.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// Provenance records which mechanism produced the order currently on screen.
type Provenance int

const (
	NativeOrUnknown Provenance = iota
	Price
)

func (p Provenance) String() string {
	if p == Price {
		return "price"
	}
	return "native_or_unknown"
}

// SortState is the in-memory state of one page load. The zero value
// (Ascending, NativeOrUnknown) is the state after a reload.
type SortState struct {
	Direction  Direction
	Provenance Provenance
}

// NextDirection applies the direction policy: keep toggling while the price
// sort is in control, start fresh otherwise.
func (s SortState) NextDirection() Direction {
	if s.Provenance == Price {
		return s.Direction.Flip()
	}
	return Ascending
}

// Result describes one completed sort pass.
type Result struct {
	Direction Direction
	// Ordered is the full output order, priced listings first.
	Ordered []ClassifiedItem
	// Excluded holds the Unresolved items in their original relative order.
	Excluded []ClassifiedItem
}

// Order arranges items by price in the given direction. Priced items come
// first, ordered stably by amount; Unresolved items follow in input order.
func Order(items []ClassifiedItem, dir Direction) (ordered, excluded []ClassifiedItem) {
	priced := make([]ClassifiedItem, 0, len(items))
	for _, it := range items {
		if it.Category == Priced {
			priced = append(priced, it)
		} else {
			excluded = append(excluded, it)
		}
	}

	slices.SortStableFunc(priced, func(a, b ClassifiedItem) int {
		if dir == Descending {
			return cmp.Compare(b.Price, a.Price)
		}
		return cmp.Compare(a.Price, b.Price)
	})

	ordered = append(priced, excluded...)
	return ordered, excluded
}

// Engine runs sort passes against a document and owns the SortState.
// It is not safe for concurrent use; the controller drives it from one goroutine.
type Engine struct {
	extractor *Extractor
	logger    *zap.Logger
	state     SortState
}

// NewEngine creates an engine in the post-reload state.
func NewEngine(extractor *Extractor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{extractor: extractor, logger: logger.Named("engine")}
}

// State returns the current direction and provenance.
func (e *Engine) State() SortState { return e.state }

// YieldToNative records that the host page's own sort took over.
func (e *Engine) YieldToNative() { e.state.Provenance = NativeOrUnknown }

// Sort scans the container, orders its listings by price and reattaches them.
// On failure nothing is moved and the state is left unchanged.
func (e *Engine) Sort(ctx context.Context, doc Document) (*Result, error) {
	container, err := doc.Container(ctx)
	if err != nil {
		return nil, fmt.Errorf("sort aborted: %w", err)
	}

	nodes, err := container.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listings: %w", err)
	}
	e.logger.Debug("Scanned listings.", zap.Int("count", len(nodes)))

	dir := e.state.NextDirection()
	ordered, excluded := Order(e.extractor.ExtractAll(nodes), dir)

	order := make([]Listing, len(ordered))
	for i, it := range ordered {
		order[i] = it.Node
	}
	if err := Reconcile(ctx, container, nodes, order); err != nil {
		return nil, err
	}

	e.state = SortState{Direction: dir, Provenance: Price}
	e.logger.Info("Sort pass completed.",
		zap.Stringer("direction", dir),
		zap.Int("priced", len(ordered)-len(excluded)),
		zap.Int("unresolved", len(excluded)),
	)
	return &Result{Direction: dir, Ordered: ordered, Excluded: excluded}, nil
}
