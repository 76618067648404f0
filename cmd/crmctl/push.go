package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/services"
)

var (
	pushUserID   string
	pushTitle    string
	pushBody     string
	pushPlatform string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send a test push notification to a user's devices",
	Long: `Send a test push through the configured provider (log, fcm or relay).

Examples:
  crmctl push --user 6f1c...            # all active devices
  crmctl push --user 6f1c... --platform ios`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, pg, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer pg.Close()
		defer app.Close()

		result, err := app.Push.SendToUser(cmd.Context(), pushUserID, services.PushMessage{
			Title:    pushTitle,
			Body:     pushBody,
			Priority: db.PriorityLow,
			Data:     map[string]string{"type": "test"},
		}, pushPlatform)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringVar(&pushUserID, "user", "", "Target users.id")
	pushCmd.Flags().StringVar(&pushTitle, "title", "Notificación de prueba", "Push title")
	pushCmd.Flags().StringVar(&pushBody, "body", "Las notificaciones push del CRM están activas.", "Push body")
	pushCmd.Flags().StringVar(&pushPlatform, "platform", "", "Restrict to one platform (ios, android, web)")
	_ = pushCmd.MarkFlagRequired("user")
}
