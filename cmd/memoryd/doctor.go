package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cortexmemory/cortex/internal/config"
	"github.com/spf13/cobra"
)

// buildDoctorCmd creates the "doctor" command: it validates the
// configuration file, opens the configured store, and reports its
// health without starting the HTTP server or the scheduler.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func runDoctor(ctx context.Context, configPath string) error {
	log := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	log.Info("config loaded successfully", "path", configPath)

	embedder, err := buildEmbedder(cfg.Embedding, cfg.Storage.Dimension, log)
	if err != nil {
		return fmt.Errorf("embedding provider %q failed to initialize: %w", cfg.Embedding.Provider, err)
	}
	log.Info("embedding provider ready", "provider", embedder.Name(), "dimension", embedder.Dimension())

	backend, closeStore, err := buildStore(ctx, cfg, embedder, log)
	if err != nil {
		return fmt.Errorf("storage backend %q failed to initialize: %w", cfg.Storage.Backend, err)
	}
	defer closeStore()

	health, err := backend.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	if !health.Writable {
		return fmt.Errorf("storage backend %q reports not writable", health.Backend)
	}
	log.Info("storage backend healthy", "backend", health.Backend, "writable", health.Writable, "counts", health.Counts)

	if _, err := buildConsolidator(cfg.Consolidation, backend, log); err != nil {
		return fmt.Errorf("consolidation pipeline misconfigured: %w", err)
	}

	log.Info("doctor: all checks passed")
	return nil
}
