package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/service"
	"github.com/noah-isme/service-order-api/pkg/config"
)

// newTokenCommand mints access tokens for local testing against a running API.
func newTokenCommand() *cobra.Command {
	var (
		actor  models.Actor
		role   string
		email  string
		expiry time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			actor.Role = models.UserRole(strings.ToUpper(role))
			switch actor.Role {
			case models.RoleWorker, models.RoleSupervisor, models.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if expiry <= 0 {
				expiry = cfg.JWT.Expiry
			}
			auth := service.NewAuthService(service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: expiry,
				Issuer:            cfg.JWT.Issuer,
			})
			token, expiresAt, err := auth.IssueToken(actor, email)
			if err != nil {
				return err
			}
			cmd.Println(token)
			cmd.PrintErrf("expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor.UserID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&actor.SectorID, "sector", "", "Sector ID")
	cmd.Flags().StringVar(&actor.DepartmentID, "department", "", "Department ID")
	cmd.Flags().StringVar(&role, "role", string(models.RoleWorker), "WORKER, SUPERVISOR or ADMIN")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (defaults to JWT_EXPIRY)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
