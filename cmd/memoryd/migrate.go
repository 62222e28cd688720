package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cortexmemory/cortex/internal/config"
	"github.com/spf13/cobra"
)

// buildMigrateCmd creates the "migrate" command. Unlike a migration
// runner with separate up/down steps, opening any of the store
// backends already applies every pending schema statement (each is
// CREATE ... IF NOT EXISTS); this command exists to run that step
// explicitly and report the resulting schema state without starting
// the HTTP server.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func runMigrate(ctx context.Context, configPath string) error {
	log := slog.Default()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding, cfg.Storage.Dimension, log)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	backend, closeStore, err := buildStore(ctx, cfg, embedder, log)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	defer closeStore()

	health, err := backend.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("post-migration health check: %w", err)
	}
	log.Info("schema up to date", "backend", health.Backend, "counts", health.Counts)
	return nil
}
