package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neoxmeet/meet-backend/internal/auth"
)

func newDevTokenCmd(deps *dependencies) *cobra.Command {
	var (
		user  string
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Sign an access token with JWT_ACCESS_SECRET for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Config.IsProduction() {
				return errors.New("dev-token is disabled in production")
			}
			if deps.Config.Auth.AccessSecret == "" {
				return errors.New("JWT_ACCESS_SECRET is not set")
			}

			userID := uuid.New()
			if user != "" {
				parsed, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("--user must be a uuid: %w", err)
				}
				userID = parsed
			}

			token, err := auth.NewJWTService(deps.Config.Auth.AccessSecret).GenerateAccessToken(userID, email, "", ttl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Access token for %s:\n%s\n", userID, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "dev@neoxmeet.local", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
