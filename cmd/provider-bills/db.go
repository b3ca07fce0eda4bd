package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the bill, line item, order and run tables when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema up to date", "dialect", db.Dialect())
			return nil
		},
	}
}

func newDBHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the database and print bill counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
				logger.Error("DB health: FAIL", "error", err)
				return err
			}
			logger.Info("DB health: OK", "dialect", db.Dialect())

			bills := repository.NewBillRepository(db, logger)
			for _, st := range constants.AllStatuses() {
				list, err := bills.ListByStatus(ctx, []constants.BillStatus{st})
				if err != nil {
					return err
				}
				logger.Info("bills", "status", st, "count", len(list))
			}
			return nil
		},
	}
}
