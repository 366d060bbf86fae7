package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/app"
	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "vmasterctl",
	Short:         "Operator tooling for the vmaster provisioning service",
	SilenceErrors: true,
	Long: `vmasterctl runs maintenance tasks against the vmaster database and backends:
schema migrations, credential pool imports, backend connection tests and
finishing interrupted account removals.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logCfg := cfg.Log
	logCfg.Format = "console"
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp builds the service graph, runs fn as the system actor and closes
// everything afterwards.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := core.WithActor(cmd.Context(), core.SystemActor("vmasterctl"))
	cmd.SetContext(ctx)
	return fn(a)
}
