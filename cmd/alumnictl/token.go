package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/auth"
	"github.com/cuongbtq/alumni-core/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for a user",
		Long: `Sign a bearer token for a user with the configured auth.jwt_secret.

The API still resolves the user's role from the database on every request,
so the token grants nothing beyond what the profile already holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("%w: auth.jwt_secret", config.ErrMissingRequired)
			}

			token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, userID, ttl, time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "profile id (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
