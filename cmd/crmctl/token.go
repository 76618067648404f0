package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/handlers"
	"github.com/travelhub/crm-escalation/internal/config"
)

var (
	tokenUserID   string
	tokenTenantID string
	tokenRole     string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API access token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.App.JWTSecret == "" {
			return errors.New("JWT_SECRET environment variable (or config) is required")
		}
		token, err := handlers.NewAuthMiddleware(config.App.JWTSecret).IssueToken(tokenUserID, tokenTenantID, tokenRole, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "users.id (token subject)")
	tokenCmd.Flags().StringVar(&tokenTenantID, "tenant", "", "Tenant id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", db.RoleAgent, "Tenant role")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("tenant")
}
