package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/logging"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/store"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list migrations and whether they are applied")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if !migrateStatus {
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logging.Info("migrations applied", "dir", cfg.MigrationsDir)
	}

	status, err := store.MigrationStatus(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	for _, m := range status {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", m.Version, state)
	}
	return nil
}
