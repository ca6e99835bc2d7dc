// =============================================================================
// QBO Sales Receipt Extractor - Auth Command
// =============================================================================
//
// This file defines the 'auth' command. It performs one token refresh to
// check the credentials and persists a rotated refresh token. Running it
// regularly keeps the stored refresh token from expiring between extracts.
//
// COMMAND USAGE:
//   receipts auth
//
// OUTPUT:
//   Access token valid until 2024-06-01T15:30:22Z
//
// The access token itself is never printed.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/pipeline"
)

// authCmd represents the 'auth' command.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Refresh the access token and persist a rotated refresh token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}

// runAuth performs one refresh exchange.
func runAuth(ctx context.Context) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()

	if ctx == nil {
		ctx = context.Background()
	}
	client := &http.Client{Timeout: env.cfg.RequestTimeout}
	manager := pipeline.NewSession(env.cfg, client, env.log)

	grant, err := manager.EnsureAuthorized(ctx)
	if err != nil {
		return err
	}

	if exp := grant.ExpiresAt(); exp.IsZero() {
		fmt.Println("Access token obtained (no expiry reported)")
	} else {
		fmt.Printf("Access token valid until %s\n", exp.UTC().Format(time.RFC3339))
	}
	if manager.RefreshToken() != env.cfg.Credentials().RefreshToken {
		fmt.Println("Refresh token rotated, but it could not be saved. Update the config before the old token expires.")
	}
	return nil
}
