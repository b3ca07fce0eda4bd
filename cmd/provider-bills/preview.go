package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
)

// newPreviewCmd renders one bill's page the way a pass would and writes the
// prepared PNG, for checking strategy choices by eye.
func newPreviewCmd() *cobra.Command {
	var (
		second bool
		out    string
	)
	cmd := &cobra.Command{
		Use:   "preview <bill-id>",
		Short: "Render and prepare a bill page without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pass := constants.FirstPass
			if second {
				pass = constants.SecondPass
			}
			if out == "" {
				out = args[0] + ".png"
			}

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			// No extractor is needed to prepare a page.
			proc := pipeline.NewProcessor(pipeline.Deps{
				DB:       a.db,
				Bills:    a.bills,
				Lines:    a.lines,
				Runs:     a.runs,
				Store:    a.store,
				Renderer: newRenderer(cfg, logger),
			}, pipeline.ConfigFrom(cfg.Pipeline), logger)

			pv, err := proc.Preview(ctx, args[0], pass)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, pv.PNG, 0o644); err != nil {
				return err
			}
			if len(pv.ZonePNG) > 0 {
				zone := strings.TrimSuffix(out, ".png") + "_zone.png"
				if err := os.WriteFile(zone, pv.ZonePNG, 0o644); err != nil {
					return err
				}
			}
			logger.Info("preview written",
				"file", out,
				"source", pv.SourceKey,
				"quality", pv.Metrics.Tier,
				"contrast", pv.Metrics.Contrast,
				"brightness", pv.Metrics.Brightness,
				"skew", pv.Metrics.Skew,
				"strategy", pv.Plan.Strategy,
				"category", pv.Plan.Category,
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&second, "second-pass", false, "prepare as the second pass would")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG (default <bill-id>.png)")
	return cmd
}
