package main

import (
	"log/slog"
	"testing"

	"github.com/cortexmemory/cortex/internal/config"
	"github.com/cortexmemory/cortex/internal/store/cloud"
)

func TestBuildEmbedderDefaultsToHash(t *testing.T) {
	provider, err := buildEmbedder(config.EmbeddingConfig{}, 128, slog.Default())
	if err != nil {
		t.Fatalf("buildEmbedder() error = %v", err)
	}
	if provider.Name() != "hash" {
		t.Errorf("provider.Name() = %q, want hash", provider.Name())
	}
	if provider.Dimension() != 128 {
		t.Errorf("provider.Dimension() = %d, want 128", provider.Dimension())
	}
}

func TestBuildEmbedderRejectsUnknownProvider(t *testing.T) {
	if _, err := buildEmbedder(config.EmbeddingConfig{Provider: "bogus"}, 128, slog.Default()); err == nil {
		t.Fatal("expected an error for an unknown embedding provider")
	}
}

func TestBuildStoreRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = "bogus"
	provider, err := buildEmbedder(config.EmbeddingConfig{}, 128, slog.Default())
	if err != nil {
		t.Fatalf("buildEmbedder() error = %v", err)
	}
	if _, _, err := buildStore(t.Context(), cfg, provider, slog.Default()); err == nil {
		t.Fatal("expected an error for an unknown storage backend")
	}
}

func TestBuildStoreOpensLocalByDefault(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Path = ":memory:"
	cfg.Storage.Dimension = 128
	provider, err := buildEmbedder(config.EmbeddingConfig{}, 128, slog.Default())
	if err != nil {
		t.Fatalf("buildEmbedder() error = %v", err)
	}
	backend, closeFn, err := buildStore(t.Context(), cfg, provider, slog.Default())
	if err != nil {
		t.Fatalf("buildStore() error = %v", err)
	}
	defer closeFn()

	health, err := backend.HealthCheck(t.Context())
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if !health.Writable {
		t.Error("expected local backend to report writable")
	}
}

func TestBuildConsolidatorForLocalBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Path = ":memory:"
	cfg.Storage.Dimension = 128
	provider, _ := buildEmbedder(config.EmbeddingConfig{}, 128, slog.Default())
	backend, closeFn, err := buildStore(t.Context(), cfg, provider, slog.Default())
	if err != nil {
		t.Fatalf("buildStore() error = %v", err)
	}
	defer closeFn()

	consolidator, err := buildConsolidator(config.ConsolidationConfig{}, backend, slog.Default())
	if err != nil {
		t.Fatalf("buildConsolidator() error = %v", err)
	}
	if consolidator == nil {
		t.Fatal("expected a consolidator for the local backend")
	}
}

func TestBuildConsolidatorNilForUnsupportedBackend(t *testing.T) {
	backend, err := cloud.New(cloud.Config{BaseURL: "http://example.invalid"})
	if err != nil {
		t.Fatalf("cloud.New() error = %v", err)
	}

	consolidator, err := buildConsolidator(config.ConsolidationConfig{}, backend, slog.Default())
	if err != nil {
		t.Fatalf("buildConsolidator() error = %v", err)
	}
	if consolidator != nil {
		t.Error("expected a nil consolidator for a backend without the consolidation store contract")
	}
}
