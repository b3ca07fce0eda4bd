package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/internal/intake"
)

func newIntakeService(a *app) *intake.Service {
	return intake.NewService(a.bills, a.store, intake.PDFCPUSplitter{WorkDir: cfg.Render.WorkDir}, cfg.Pipeline.UploadedBy, logger)
}

func newIntakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intake <file.pdf|dir>...",
		Short: "Split PDFs into one SCANNED bill per page",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			svc := newIntakeService(a)

			var failed int
			for _, arg := range args {
				fi, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if fi.IsDir() {
					_, stats, err := svc.IngestDir(ctx, arg)
					if err != nil {
						return err
					}
					failed += stats.Failed
					continue
				}
				res, err := svc.IngestFile(ctx, arg)
				if err != nil {
					logger.Error("intake failed", "file", arg, "error", err)
					failed++
					continue
				}
				logger.Info("intake ok", "file", arg, "bills", len(res.BillIDs), "failed_pages", len(res.Failed))
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed intake", failed)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var (
		dir     string
		initial bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest PDFs dropped into an inbox directory until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if dir == "" {
				dir = cfg.Pipeline.InboxDir
			}
			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return newIntakeService(a).Watch(ctx, intake.WatchConfig{Dir: dir, InitialScan: initial})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "inbox directory (INBOX_DIR)")
	cmd.Flags().BoolVar(&initial, "initial-scan", true, "ingest files already in the inbox")
	return cmd
}
