package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cortexmemory/cortex/internal/api"
	"github.com/cortexmemory/cortex/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cortex memory engine HTTP API and consolidation scheduler",
		Long: `Start the Cortex memory engine: load configuration, open the
configured storage backend, and serve the HTTP API and Prometheus
metrics endpoint until a SIGINT or SIGTERM is received.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
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
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	consolidator, err := buildConsolidator(cfg.Consolidation, backend, log)
	if err != nil {
		return fmt.Errorf("build consolidator: %w", err)
	}

	scheduler, err := buildScheduler(cfg.Consolidation.Schedule, consolidator, log)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := api.New(api.Config{
		Store:               backend,
		Embedder:            embedder,
		Consolidator:        consolidator,
		Logger:              log,
		JWTSecret:           cfg.Auth.JWTSecret,
		MaxChars:            cfg.Response.MaxChars,
		QualityBoostEnabled: cfg.Quality.Boost.Enabled,
		QualityBoostWeight:  cfg.Quality.Boost.Weight,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	log.Info("cortex memory engine starting",
		"version", version,
		"storage_backend", cfg.Storage.Backend,
		"api_addr", apiAddr,
		"metrics_addr", metricsAddr,
		"auth_enabled", cfg.Auth.JWTSecret != "",
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.ListenAndServe(gctx, apiAddr) })
	group.Go(func() error { return server.ListenAndServeMetrics(gctx, metricsAddr) })

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("cortex memory engine stopped")
	return nil
}
