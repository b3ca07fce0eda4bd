package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/internal/matcher"
)

func newMapCmd() *cobra.Command {
	var diagnostic string
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Map VALID bills onto orders",
		Long: `Map every VALID/to_map bill onto a patient order by name similarity and
service date. With --diagnostic, score one bill against all orders and print
the top candidates without writing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			m := matcher.New(a.db, a.bills, a.lines, a.orders, matcher.ConfigFrom(cfg.Matcher), logger)

			if diagnostic != "" {
				d, err := m.Diagnose(ctx, diagnostic)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			_, err = m.MapAll(ctx, cfg.Pipeline.LeaseDuration)
			return err
		},
	}
	cmd.Flags().StringVar(&diagnostic, "diagnostic", "", "print the top matches for this bill id without writing")
	return cmd
}
