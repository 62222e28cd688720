package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cortexmemory/cortex/internal/config"
	"github.com/cortexmemory/cortex/internal/consolidate"
	"github.com/cortexmemory/cortex/internal/embeddings"
	"github.com/cortexmemory/cortex/internal/embeddings/hashfallback"
	"github.com/cortexmemory/cortex/internal/embeddings/ollama"
	"github.com/cortexmemory/cortex/internal/embeddings/openai"
	"github.com/cortexmemory/cortex/internal/hybrid"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/store/cloud"
	"github.com/cortexmemory/cortex/internal/store/cloud/pgstore"
	"github.com/cortexmemory/cortex/internal/store/local"
)

// buildEmbedder selects and constructs the configured embedding
// provider, falling back to the deterministic hash provider when none
// is configured so the engine is usable without external credentials.
func buildEmbedder(cfg config.EmbeddingConfig, dimension int, log *slog.Logger) (embeddings.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		return hashfallback.New(hashfallback.Config{Dimension: dimension})
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("config: unknown embedding provider %q", cfg.Provider)
	}
}

// buildStore constructs the configured store.Backend: a local SQLite
// store, a remote-only cloud client, a direct-Postgres cloud
// transport (storage.backend "pgstore", with storage.cloud.base_url as
// the DSN; config validation does not accept that value), or a hybrid
// composition of local plus cloud.
//
// The returned closeFn releases backend resources (database handles,
// background workers) and must be called during shutdown.
func buildStore(ctx context.Context, cfg *config.Config, embedder embeddings.Provider, log *slog.Logger) (store.Backend, func() error, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "local":
		backend, err := local.New(local.Config{
			Path:      cfg.Storage.Path,
			Dimension: cfg.Storage.Dimension,
			Dedup: local.DedupConfig{
				Enabled:     cfg.Dedup.Semantic.IsEnabled(),
				WindowHours: cfg.Dedup.Semantic.WindowHours,
				Threshold:   cfg.Dedup.Semantic.Threshold,
			},
			Embedder: embedder,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open local store: %w", err)
		}
		return backend, backend.Close, nil

	case "cloud":
		backend, err := cloud.New(cloud.Config{
			BaseURL:   cfg.Storage.Cloud.BaseURL,
			Token:     cfg.Storage.Cloud.Token,
			Dimension: cfg.Storage.Dimension,
			Logger:    log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open cloud store: %w", err)
		}
		return backend, backend.Close, nil

	case "pgstore":
		// storage.cloud.base_url doubles as the Postgres DSN here: this
		// transport is a direct-connection alternative to the HTTP
		// cloud client, configured under the same section.
		backend, err := pgstore.New(ctx, pgstore.Config{
			DSN:       cfg.Storage.Cloud.BaseURL,
			Dimension: cfg.Storage.Dimension,
			Embedder:  embedder,
			Logger:    log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open pgstore: %w", err)
		}
		return backend, backend.Close, nil

	case "hybrid":
		return buildHybridStore(ctx, cfg, embedder, log)

	default:
		return nil, nil, fmt.Errorf("config: unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildHybridStore(ctx context.Context, cfg *config.Config, embedder embeddings.Provider, log *slog.Logger) (store.Backend, func() error, error) {
	localBackend, err := local.New(local.Config{
		Path:      cfg.Storage.Path,
		Dimension: cfg.Storage.Dimension,
		Dedup: local.DedupConfig{
			Enabled:     cfg.Dedup.Semantic.IsEnabled(),
			WindowHours: cfg.Dedup.Semantic.WindowHours,
			Threshold:   cfg.Dedup.Semantic.Threshold,
		},
		Embedder: embedder,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open local replica: %w", err)
	}

	cloudBackend, err := cloud.New(cloud.Config{
		BaseURL:   cfg.Storage.Cloud.BaseURL,
		Token:     cfg.Storage.Cloud.Token,
		Dimension: cfg.Storage.Dimension,
		Logger:    log,
	})
	if err != nil {
		localBackend.Close()
		return nil, nil, fmt.Errorf("open cloud client: %w", err)
	}

	backend, err := hybrid.New(hybrid.Config{
		Local:           localBackend,
		Cloud:           cloudBackend,
		SyncBatchSize:   cfg.Storage.Hybrid.Sync.BatchSize,
		SyncInterval:    cfg.Storage.Hybrid.Sync.Interval,
		MaxSyncAttempts: cfg.Storage.Hybrid.Sync.MaxAttempts,
		DriftInterval:   cfg.Storage.Hybrid.Sync.DriftInterval,
		Logger:          log,
	})
	if err != nil {
		localBackend.Close()
		return nil, nil, fmt.Errorf("build hybrid backend: %w", err)
	}

	if _, _, err := backend.InitialSync(ctx); err != nil {
		log.Warn("hybrid: initial sync failed, continuing with local state only", "error", err)
	}
	backend.Start(ctx)

	return backend, backend.Close, nil
}

// consolidateStore is the subset of store.Backend the consolidator
// needs; it is satisfied by local.Backend and hybrid.Backend.
// pgstore.Backend does not implement the consolidation run methods.
type consolidateStore interface {
	consolidate.Store
}

// buildConsolidator wires a Consolidator against backend, returning
// nil (not an error) when backend doesn't implement the extra
// consolidation methods — this is the case for the plain HTTP cloud
// client, which has no SQL connection to run the pipeline's clustering
// and archival queries against, and for pgstore.
func buildConsolidator(cfg config.ConsolidationConfig, backend store.Backend, log *slog.Logger) (*consolidate.Consolidator, error) {
	cs, ok := backend.(consolidateStore)
	if !ok {
		log.Warn("consolidation disabled: backend does not support the consolidation store contract")
		return nil, nil
	}

	var s3 consolidate.S3Uploader
	if cfg.ArchiveS3.Enabled {
		ctx := context.Background()
		archive, err := consolidate.NewS3Archive(ctx, consolidate.S3ArchiveConfig{
			Bucket:          cfg.ArchiveS3.Bucket,
			Region:          cfg.ArchiveS3.Region,
			Endpoint:        cfg.ArchiveS3.Endpoint,
			Prefix:          cfg.ArchiveS3.Prefix,
			AccessKeyID:     cfg.ArchiveS3.AccessKeyID,
			SecretAccessKey: cfg.ArchiveS3.SecretAccessKey,
			UsePathStyle:    cfg.ArchiveS3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("build s3 archive: %w", err)
		}
		s3 = archive
	}

	return consolidate.New(consolidate.Config{
		Store:                  cs,
		Logger:                 log,
		CreativeAssociationCap: cfg.CreativeAssociationCap,
		SimilarityFloor:        cfg.SimilarityFloor,
		SimilarityCeil:         cfg.SimilarityCeil,
		DBSCANMinClusterSize:   cfg.DBSCANMinClusterSize,
		DBSCANEpsilon:          cfg.DBSCANEpsilon,
		CompressionMaxChars:    cfg.CompressionMaxChars,
		ArchiveThreshold:       cfg.Forgetting.RelevanceThreshold,
		AccessThresholdDays:    cfg.Forgetting.AccessThresholdDays,
		ArchivePath:            cfg.ArchivePath,
		S3:                     s3,
	}), nil
}

// buildScheduler registers every horizon with a configured cron
// expression against consolidator. Returns nil if consolidator is nil
// or no horizon has a schedule.
func buildScheduler(cfg config.ConsolidationScheduleConfig, consolidator *consolidate.Consolidator, log *slog.Logger) (*consolidate.Scheduler, error) {
	if consolidator == nil {
		return nil, nil
	}
	horizons := map[consolidate.Horizon]string{
		consolidate.HorizonDaily:     cfg.Daily,
		consolidate.HorizonWeekly:    cfg.Weekly,
		consolidate.HorizonMonthly:   cfg.Monthly,
		consolidate.HorizonQuarterly: cfg.Quarterly,
		consolidate.HorizonYearly:    cfg.Yearly,
	}
	scheduler := consolidate.NewScheduler(consolidator, log)
	scheduled := false
	for horizon, expr := range horizons {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if err := scheduler.Schedule(horizon, expr); err != nil {
			return nil, err
		}
		scheduled = true
	}
	if !scheduled {
		return nil, nil
	}
	return scheduler, nil
}
