package wishlist

import (
	"context"
	"fmt"
)

// Reconcile applies order to the container. The order must be a permutation
// of the scanned listings: no node is added, dropped or repeated.
func Reconcile(ctx context.Context, c Container, scanned, order []Listing) error {
	if len(order) != len(scanned) {
		return fmt.Errorf("%w: %d scanned, %d ordered", ErrOrderMismatch, len(scanned), len(order))
	}

	seen := make(map[string]bool, len(scanned))
	for _, n := range scanned {
		seen[n.Key()] = false
	}
	for _, n := range order {
		used, ok := seen[n.Key()]
		if !ok {
			return fmt.Errorf("%w: unknown listing %q", ErrOrderMismatch, n.Key())
		}
		if used {
			return fmt.Errorf("%w: listing %q repeated", ErrOrderMismatch, n.Key())
		}
		seen[n.Key()] = true
	}

	if err := c.Reattach(ctx, order); err != nil {
		return fmt.Errorf("failed to reattach listings: %w", err)
	}
	return nil
}
