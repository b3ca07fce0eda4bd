package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		statuses []string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write bills and their line items to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var filter []constants.BillStatus
			for _, s := range statuses {
				st, ok := constants.ParseStatus(s)
				if !ok {
					return common.NewAppError("INVALID_STATUS", fmt.Sprintf("unknown bill status %q", s), common.ErrInvalidInput)
				}
				filter = append(filter, st)
			}
			if out == "" {
				out = fmt.Sprintf("provider-bills-%s.xlsx", time.Now().Format("20060102-150405"))
			}

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			data, err := export.NewService(a.bills, a.lines, logger).ExportBillsXLSX(ctx, filter)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			logger.Info("export written", "file", out, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "bill statuses to export, repeatable (default all)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}
