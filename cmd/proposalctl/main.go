// Command proposalctl runs operational tasks against the proposal database:
// schema migrations, venue catalogue seeding, the expiry sweep and staff
// token issuance.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/db"
	"github.com/vinetrail/vinetrail-backend/internal/store/postgres"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/middleware"
	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
)

func main() {
	_ = godotenv.Load()
	logger.InitLogger()
	defer func() { _ = logger.Close() }()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "proposalctl",
		Short:        "Operational commands for the proposal service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newSeedVenuesCmd(), newExpireOverdueCmd(), newIssueTokenCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return db.RunMigrations(cfg.Database.URL())
		},
	}
}

func newSeedVenuesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-venues",
		Short: "Insert or update the venue catalogue from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open venue file: %w", err)
			}
			defer f.Close()

			venues, err := loadVenueFile(f)
			if err != nil {
				return err
			}

			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				n, err := postgres.NewVenueStore(pool).UpsertVenues(cmd.Context(), venues)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d venues from %s\n", n, file)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "venues.yaml", "YAML file listing venues")
	return cmd
}

func newExpireOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-overdue",
		Short: "Expire sent and viewed proposals past their validity date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				// Expiry sends no notifications and takes no payments.
				svc := proposalsvc.NewProposalService(postgres.NewProposalStore(pool), nil, nil, nil)
				ids, err := svc.ExpireOverdue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d proposals\n", len(ids))
				for _, id := range ids {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d\n", id)
				}
				return nil
			})
		},
	}
}

func newIssueTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a staff bearer token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if role != middleware.RoleStaff && role != middleware.RoleAdmin {
				return fmt.Errorf("--role must be %q or %q", middleware.RoleStaff, middleware.RoleAdmin)
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.IssueStaffToken(subject, role, ttl, []byte(cfg.Server.AdminJWTSecret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "staff member identifier")
	cmd.Flags().StringVar(&role, "role", middleware.RoleStaff, "staff or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func withPool(ctx context.Context, fn func(pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewConnector().Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}
