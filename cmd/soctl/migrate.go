package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/noah-isme/service-order-api/pkg/config"
	"github.com/noah-isme/service-order-api/pkg/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *sqlx.DB) error {
				if err := database.MigrateDown(db.DB, steps); err != nil {
					return err
				}
				cmd.Printf("rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(func(db *sqlx.DB) error {
					version, err := database.MigrateUp(db.DB)
					if err != nil {
						return err
					}
					cmd.Printf("schema at version %d\n", version)
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(_ *cobra.Command, _ []string) error {
				return withDB(func(db *sqlx.DB) error {
					return database.MigrationStatus(db.DB)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(func(db *sqlx.DB) error {
					version, err := database.Version(db.DB)
					if err != nil {
						return err
					}
					cmd.Println(version)
					return nil
				})
			},
		},
	)
	return cmd
}

func withDB(fn func(db *sqlx.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
