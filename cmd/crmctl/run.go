package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/travelhub/crm-escalation/internal/config"
)

var catchUp bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one escalation cycle and print its summary",
	Long: `Run one escalation cycle against the configured database and print the summary as JSON.

The cycle takes the same lock as the worker, so it exits with an error while a
scheduled cycle is in progress.

Examples:
  crmctl run                # single-step escalation
  crmctl run --catch-up     # jump straight to the highest qualifying level`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("catch-up") {
			config.App.Escalation.CatchUp = catchUp
		}

		app, pg, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer pg.Close()
		defer app.Close()

		summary, err := app.Engine.RunEscalationCycle(cmd.Context())
		if err != nil {
			return fmt.Errorf("escalation cycle failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&catchUp, "catch-up", false, "Execute the highest qualifying level instead of one step")
}
