package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/smilecook/internal/config"
	sqliteRepo "github.com/sakif/smilecook/internal/repository/sqlite"
	"github.com/sakif/smilecook/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smilecook",
		Short:         "smilecook recipe sharing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runMigrate(cmd.Context(), cfg, cfg.Logger())
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (overrides DB_PATH)")
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Store != config.StoreSQLite {
		return fmt.Errorf("migrate needs STORE=%s, got %q", config.StoreSQLite, cfg.Store)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	// New applies every pending migration before returning.
	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("migrations applied", slog.String("database", cfg.DBPath))
	return nil
}
