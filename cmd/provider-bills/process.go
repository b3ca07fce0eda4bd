package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
)

func newProcessCmd(use, short string, pass constants.Pass) *cobra.Command {
	var limit, workers int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Pipeline.BatchLimit
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Pipeline.Workers
			}

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			proc, err := a.newProcessor(ctx, cfg, logger)
			if err != nil {
				return err
			}

			snap, err := pipeline.NewBatch(proc, a.bills, workers, logger).Run(ctx, pass, limit)
			proc.Stats().Snapshot().LogSummary(logger, "pipeline.totals")
			if err != nil {
				return err
			}
			if snap.Processed == 0 && snap.Skipped == 0 {
				logger.Info("no bills to process", "pass", int(pass))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum bills to process, 0 for all (PIPELINE_BATCH_LIMIT)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent bills (PIPELINE_WORKERS)")
	return cmd
}
