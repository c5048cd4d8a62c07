package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/shape"
)

type statsOptions struct {
	site string
	from string
	to   string
}

func newStatsCommand() *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a site's visit summary as JSON",
		Long: `Print total visits plus the by-country, by-language, and daily
breakdowns for one site.  Dates are YYYY-MM-DD in the store timezone and
both ends are inclusive.  Daily rows are capped at 90, newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			loc := a.cfg.Store.Location()
			win, err := shape.Days(opts.from, opts.to, loc)
			if err != nil {
				return err
			}
			engine := analytics.New(a.store, loc, a.log.Desugar())
			sum, err := engine.Summarize(cmd.Context(), opts.site, win.Start, win.End)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", opts.site, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	cmd.Flags().StringVar(&opts.site, "site", "", "site id (required)")
	cmd.Flags().StringVar(&opts.from, "from", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last day, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
