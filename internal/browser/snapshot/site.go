package snapshot

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

// Site serves fresh loads of one saved document. All loads share a session
// store, the way a tab keeps sessionStorage across reloads.
type Site struct {
	source []byte
	cfg    config.WishlistConfig
	store  wishlist.SessionStore
	logger *zap.Logger
	loads  int
}

// NewSite wraps source. A nil store gets a fresh wishlist.MemoryStore.
func NewSite(source []byte, cfg config.WishlistConfig, store wishlist.SessionStore, logger *zap.Logger) *Site {
	if store == nil {
		store = wishlist.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{source: source, cfg: cfg, store: store, logger: logger}
}

// LoadSite reads a saved wishlist page from disk.
func LoadSite(path string, cfg config.WishlistConfig, store wishlist.SessionStore, logger *zap.Logger) (*Site, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return NewSite(b, cfg, store, logger), nil
}

// Open parses a new page load.
func (s *Site) Open() (*Page, error) {
	s.loads++
	p, err := Parse(bytes.NewReader(s.source), s.cfg, s.store, s.logger.With(zap.Int("load", s.loads)))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Loads returns how many pages were opened.
func (s *Site) Loads() int { return s.loads }

// Store returns the shared session store.
func (s *Site) Store() wishlist.SessionStore { return s.store }
