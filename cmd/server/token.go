package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/surveydesk/internal/config"
	"github.com/soaringjerry/surveydesk/internal/middleware"
	"github.com/soaringjerry/surveydesk/internal/services"
)

// newTokenCmd mints a bearer token signed with the configured secret, for
// local testing and service accounts.
func newTokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := services.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			tok, err := middleware.NewAuth(cfg.JWTSecret).SignToken(user, r, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (uid claim)")
	cmd.Flags().StringVar(&role, "role", string(services.RoleRespondent), "admin, creator or respondent")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
