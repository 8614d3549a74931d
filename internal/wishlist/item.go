package wishlist

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/config"
)

// Category classifies a listing for ordering purposes.
type Category int

const (
	// Priced listings carry a usable numeric price.
	Priced Category = iota
	// Unresolved listings (TBA, unannounced, unparseable) are excluded from numeric ordering.
	Unresolved
)

func (c Category) String() string {
	if c == Priced {
		return "priced"
	}
	return "unresolved"
}

// ClassifiedItem is the typed record extracted from one listing.
// It is rebuilt on every sort pass and never persisted.
type ClassifiedItem struct {
	Node  Listing
	Title string
	// Price is the parsed amount. It is only meaningful when HasPrice is set.
	Price    float64
	HasPrice bool
	Category Category
	// Reason explains an Unresolved classification.
	Reason string
}

// Extractor turns listing nodes into ClassifiedItems.
type Extractor struct {
	sel          config.SelectorConfig
	sentinel     float64
	unknownTitle string
	logger       *zap.Logger
}

// NewExtractor builds an extractor from the wishlist configuration.
func NewExtractor(cfg config.WishlistConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	title := cfg.Labels.UnknownTitle
	if title == "" {
		title = "Unknown Title"
	}
	return &Extractor{
		sel:          cfg.Selectors,
		sentinel:     cfg.SentinelPrice,
		unknownTitle: title,
		logger:       logger.Named("extractor"),
	}
}

// Extract classifies a single listing. It only reads from the node.
func (e *Extractor) Extract(node Listing) ClassifiedItem {
	item := ClassifiedItem{Node: node, Title: e.unknownTitle, Category: Priced}
	if t, ok := node.Text(e.sel.Title); ok {
		item.Title = strings.TrimSpace(t)
	}

	// A discounted price takes precedence over the standard one.
	priceText, hasText := node.Text(e.sel.Discount)
	if !hasText {
		priceText, hasText = node.Text(e.sel.Price)
	}

	var parsed bool
	if hasText {
		item.Price, parsed = ParsePrice(priceText)
		item.HasPrice = parsed
	}

	switch {
	case node.Visible(e.sel.TBABadge):
		item.Reason = "tba badge visible"
	case !hasText:
		item.Reason = "no price"
	case !parsed:
		item.Reason = "unparseable price"
	case item.Price == e.sentinel && node.Present(e.sel.SoonFlag):
		// Placeholder price on an unreleased title. A real price equal to the
		// sentinel on a "soon" title is misclassified; accepted approximation.
		item.Reason = "placeholder price on coming soon title"
	}

	if item.Reason != "" {
		item.Category = Unresolved
		e.logger.Debug("Marked as TBA/SOON.", zap.String("title", item.Title), zap.String("reason", item.Reason))
		return item
	}

	e.logger.Debug("Extracted price.", zap.String("title", item.Title), zap.Float64("price", item.Price))
	return item
}

// ExtractAll classifies every listing, preserving input order.
func (e *Extractor) ExtractAll(nodes []Listing) []ClassifiedItem {
	items := make([]ClassifiedItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, e.Extract(n))
	}
	return items
}

// ParsePrice normalizes rendered price text into a number. Every character
// other than a digit or decimal point is dropped, which also removes
// thousands separators and currency symbols. The longest leading decimal
// literal is then parsed; ok is false when there is none.
func ParsePrice(text string) (value float64, ok bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	lit := leadingDecimal(b.String())
	if lit == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// leadingDecimal returns the longest prefix of s of the form digits[.digits]
// containing at least one digit. s holds only digits and dots.
func leadingDecimal(s string) string {
	end, digits, dot := 0, 0, false
	for end < len(s) {
		c := s[end]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else {
			digits++
		}
		end++
	}
	if digits == 0 {
		return ""
	}
	return strings.TrimSuffix(s[:end], ".")
}
