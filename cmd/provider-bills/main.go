// Command provider-bills runs the provider bill batch jobs: intake, the two
// extraction passes, mapping, and exports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/logging"
)

// globals are filled by the root command before any subcommand runs.
var (
	cfg    *common.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("provider-bills failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel, logFormat   string
		dbDriver, sqlitePath  string
		storageRoot, provider string
	)
	root := &cobra.Command{
		Use:           "provider-bills",
		Short:         "HCFA-1500 provider bill pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg = common.LoadConfig()
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if flags.Changed("db-driver") {
				cfg.Database.Driver = dbDriver
			}
			if flags.Changed("sqlite-path") {
				cfg.Database.SQLitePath = sqlitePath
			}
			if flags.Changed("storage-root") {
				cfg.Storage.Backend = "fs"
				cfg.Storage.Root = storageRoot
			}
			if flags.Changed("llm-provider") {
				cfg.LLM.Provider = provider
			}
			logger = logging.Setup(cfg.Log.Format, cfg.Log.Level)
			return cfg.Validate()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error (LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "text", "text or json (LOG_FORMAT)")
	pf.StringVar(&dbDriver, "db-driver", "postgres", "postgres or sqlite (DB_DRIVER)")
	pf.StringVar(&sqlitePath, "sqlite-path", "", "SQLite database file (SQLITE_PATH)")
	pf.StringVar(&storageRoot, "storage-root", "", "use a filesystem object store rooted here (STORAGE_ROOT)")
	pf.StringVar(&provider, "llm-provider", "openai", "openai or vertex (LLM_PROVIDER)")

	root.AddCommand(
		newProcessCmd("process-scanned", "Run the first extraction pass over SCANNED bills", constants.FirstPass),
		newProcessCmd("process-invalid", "Run the second extraction pass over INVALID bills", constants.SecondPass),
		newMapCmd(),
		newIntakeCmd(),
		newWatchCmd(),
		newExportCmd(),
		newMigrateCmd(),
		newDBHealthCmd(),
		newPreviewCmd(),
	)
	return root
}
