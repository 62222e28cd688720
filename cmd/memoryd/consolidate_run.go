package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cortexmemory/cortex/internal/config"
	"github.com/cortexmemory/cortex/internal/consolidate"
	"github.com/spf13/cobra"
)

// buildConsolidateRunCmd creates the "consolidate-run" command, which
// triggers a single consolidation pass for one horizon outside of the
// scheduler — useful for manual operation and for testing a horizon's
// configuration before wiring it to a cron schedule.
func buildConsolidateRunCmd() *cobra.Command {
	var configPath string
	var horizon string

	cmd := &cobra.Command{
		Use:   "consolidate-run",
		Short: "Run one consolidation pass immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidateRun(cmd.Context(), resolveConfigPath(configPath), horizon)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&horizon, "horizon", "daily", "horizon to run: daily, weekly, monthly, quarterly, yearly")
	return cmd
}

func runConsolidateRun(ctx context.Context, configPath, horizonFlag string) error {
	log := slog.Default()

	horizon := consolidate.Horizon(horizonFlag)
	switch horizon {
	case consolidate.HorizonDaily, consolidate.HorizonWeekly, consolidate.HorizonMonthly,
		consolidate.HorizonQuarterly, consolidate.HorizonYearly:
	default:
		return fmt.Errorf("unknown horizon %q", horizonFlag)
	}

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
	if consolidator == nil {
		return fmt.Errorf("storage backend %q does not support consolidation", cfg.Storage.Backend)
	}

	stats, err := consolidator.Run(ctx, horizon)
	if err != nil {
		return fmt.Errorf("consolidation run failed: %w", err)
	}

	log.Info("consolidation run complete",
		"horizon", horizon,
		"processed", stats.Processed,
		"associations", stats.Associations,
		"clusters", stats.Clusters,
		"summaries", stats.Summaries,
		"archived", stats.Archived,
	)
	return nil
}
