package cdp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

// Driver opens the wishlist in a browser tab and runs one controller per
// page load until the context ends.
type Driver struct {
	browser  config.BrowserConfig
	wishlist config.WishlistConfig
	logger   *zap.Logger
}

func NewDriver(cfg config.Interface, logger *zap.Logger) *Driver {
	return &Driver{browser: cfg.Browser(), wishlist: cfg.Wishlist(), logger: logger.Named("driver")}
}

// Run blocks until ctx is cancelled or the browser fails.
func (d *Driver) Run(ctx context.Context) error {
	mgr, err := NewManager(ctx, d.logger, d.browser)
	if err != nil {
		return err
	}
	defer mgr.Shutdown()

	tabCtx, closeTab := mgr.NewTab()
	defer closeTab()

	page, err := NewPage(tabCtx, d.wishlist, d.logger)
	if err != nil {
		return fmt.Errorf("failed to prepare tab: %w", err)
	}
	defer page.Close()

	console := NewConsoleForwarder(d.logger)
	if d.browser.ForwardConsole {
		console.Listen(tabCtx)
	}

	if err := page.Navigate(ctx, d.wishlist.URL, d.browser.NavigationTimeout); err != nil {
		return fmt.Errorf("failed to open %s: %w", d.wishlist.URL, err)
	}
	d.logger.Info("Wishlist opened.", zap.String("url", d.wishlist.URL))

	g, gctx := errgroup.WithContext(ctx)
	pumpCtx, stopPump := context.WithCancel(gctx)
	g.Go(func() error { return console.Pump(pumpCtx) })
	g.Go(func() error {
		defer stopPump()
		return d.loop(gctx, page)
	})
	return g.Wait()
}

// loop runs a fresh controller for every document the tab shows.
func (d *Driver) loop(ctx context.Context, page *Page) error {
	for load := 1; ; load++ {
		page.BeginLoad()
		c := wishlist.NewController(d.wishlist, page, d.logger.With(zap.Int("load", load)))
		err := c.Run(ctx)

		switch {
		case errors.Is(err, wishlist.ErrPageReloaded):
			d.logger.Debug("Reload performed; starting next execution.", zap.String("execution_id", c.ID()))
		case err == nil:
			// The tab navigated on its own.
			if ctx.Err() != nil {
				return nil
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("execution %s failed: %w", c.ID(), err)
		}
	}
}
