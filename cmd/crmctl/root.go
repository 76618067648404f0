package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/travelhub/crm-escalation/internal/bootstrap"
	"github.com/travelhub/crm-escalation/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "CRM escalation operations CLI",
	Long:  `Operate the CRM escalation engine: run a cycle by hand, inspect the ladder, test push delivery.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = os.Getenv("CRM_CONFIG_PATH")
		}
		return config.LoadConfig(configPath)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $CRM_CONFIG_PATH or ./dev.config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp connects to the configured database and assembles the engine.
func openApp(ctx context.Context) (*bootstrap.App, *sql.DB, error) {
	pg, err := bootstrap.OpenDatabase(config.App.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.New(ctx, config.App, pg)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return app, pg, nil
}
