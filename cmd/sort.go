package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/browser/snapshot"
	"github.com/xkilldash9x/wishsort/internal/observability"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

const (
	formatText = "text"
	formatHTML = "html"
)

// newSortCmd creates the `sort` command, which sorts a saved wishlist page
// without a browser.
func newSortCmd() *cobra.Command {
	var (
		in     string
		out    string
		format string
		passes int
	)

	sortCmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort a saved wishlist page by price",
		Long: `Applies consecutive price sort passes to a saved wishlist page. Each pass
after the first reverses the direction. Text output lists one
"title<TAB>price" line per product, with TBA for products without a usable
price; html output is the re-ordered document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if passes < 1 {
				return fmt.Errorf("--passes must be at least 1, got %d", passes)
			}
			if format != formatText && format != formatHTML {
				return fmt.Errorf("unsupported format %q, expected %q or %q", format, formatText, formatHTML)
			}

			logger := observability.GetLogger()
			site, err := snapshot.LoadSite(in, cfg.Wishlist(), nil, logger)
			if err != nil {
				return err
			}
			page, err := site.Open()
			if err != nil {
				return err
			}

			engine := wishlist.NewEngine(wishlist.NewExtractor(cfg.Wishlist(), logger), logger)
			var res *wishlist.Result
			for i := 0; i < passes; i++ {
				if res, err = engine.Sort(ctx, page); err != nil {
					return fmt.Errorf("sort pass %d failed: %w", i+1, err)
				}
			}
			logger.Info("Snapshot sorted",
				zap.String("file", in),
				zap.Int("passes", passes),
				zap.Stringer("direction", res.Direction),
				zap.Int("excluded", len(res.Excluded)),
			)

			var buf bytes.Buffer
			if format == formatHTML {
				err = page.Render(&buf)
			} else {
				err = writeOrder(&buf, res)
			}
			if err != nil {
				return err
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			return nil
		},
	}

	sortCmd.Flags().StringVarP(&in, "in", "i", "", "Saved wishlist page (HTML).")
	sortCmd.Flags().StringVarP(&out, "out", "o", "", "Output file. Defaults to stdout.")
	sortCmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format, 'text' or 'html'.")
	sortCmd.Flags().IntVarP(&passes, "passes", "n", 1, "Number of consecutive sort passes.")
	_ = sortCmd.MarkFlagRequired("in")
	return sortCmd
}

// writeOrder prints one line per item in result order.
func writeOrder(w io.Writer, res *wishlist.Result) error {
	for _, item := range res.Ordered {
		price := "TBA"
		if item.Category == wishlist.Priced {
			price = fmt.Sprintf("%.2f", item.Price)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", item.Title, price); err != nil {
			return err
		}
	}
	return nil
}
