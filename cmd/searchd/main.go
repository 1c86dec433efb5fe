package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/config"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/logging"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "searchd",
	Short:         "Forum thread search and ranking service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SEARCHD_CONFIG"), "config file (env SEARCHD_CONFIG)")
	rootCmd.AddCommand(serveCmd, migrateCmd, reindexCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "searchd:", err)
		os.Exit(1)
	}
}

// setup loads configuration and starts logging for a subcommand.
func setup() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := logging.Init(cfg.LogDevelopment); err != nil {
		return config.Config{}, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// openStore connects to Postgres and builds the store with the configured
// segmenter. The caller closes the returned db.
func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.PostgresStore, segment.Segmenter, error) {
	seg, err := segment.New(cfg.Segmenter)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, store.NewPostgresStore(db, seg), seg, nil
}
