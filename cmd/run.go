package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/browser/cdp"
	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/observability"
)

type driver interface {
	Run(ctx context.Context) error
}

// newDriver is swapped out in tests.
var newDriver = func(cfg config.Interface, logger *zap.Logger) driver {
	return cdp.NewDriver(cfg, logger)
}

// newRunCmd creates the `run` command, which drives a live browser.
func newRunCmd() *cobra.Command {
	var (
		url      string
		trigger  string
		headless bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Open the wishlist in a browser and keep the price sort attached",
		Long: `Launches Chrome, opens the wishlist and augments every page load with a
price sort until interrupted. Sign in once with the persistent profile
(browser.user_data_dir) before relying on it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			// Flags override config and env only when given.
			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.SetWishlistURL(url)
			}
			if flags.Changed("trigger") {
				cfg.SetWishlistTrigger(config.TriggerStyle(trigger))
			}
			if flags.Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			logger := observability.GetLogger()
			logger.Info("Starting wishlist session",
				zap.String("url", cfg.Wishlist().URL),
				zap.String("trigger", string(cfg.Wishlist().Trigger)),
				zap.Bool("headless", cfg.Browser().Headless),
			)

			if err := newDriver(cfg, logger).Run(ctx); err != nil {
				return err
			}
			logger.Info("Wishlist session ended")
			return nil
		},
	}

	runCmd.Flags().StringVar(&url, "url", "", "Wishlist URL. (Overrides config/env)")
	runCmd.Flags().StringVar(&trigger, "trigger", "", "Trigger style, 'button' or 'dropdown'. (Overrides config/env)")
	runCmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window. (Overrides config/env)")
	return runCmd
}
