// Package main provides the CLI entry point for the Cortex memory
// engine: a persistent semantic memory store with hybrid local/cloud
// sync and a dream-inspired consolidation pipeline.
//
// # Basic usage
//
//	memoryd serve --config cortex.yaml
//	memoryd migrate --config cortex.yaml
//	memoryd doctor --config cortex.yaml
//	memoryd consolidate-run --horizon daily --config cortex.yaml
//
// # Environment variables
//
//   - CORTEX_CONFIG: path to the configuration file (default: cortex.yaml)
//   - OPENAI_API_KEY: API key for the OpenAI embedding provider
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memoryd",
		Short: "Cortex - persistent semantic memory engine",
		Long: `Cortex stores, recalls and consolidates semantic memories across a
hybrid local/cloud vector store, with a dream-inspired pipeline that
associates, clusters, compresses and forgets memories on a schedule.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildDoctorCmd(),
		buildConsolidateRunCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CORTEX_CONFIG"); env != "" {
		return env
	}
	return "cortex.yaml"
}
