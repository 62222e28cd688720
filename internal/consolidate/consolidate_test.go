package consolidate

import (
	"testing"

	"github.com/cortexmemory/cortex/internal/embeddings/hashfallback"
	"github.com/cortexmemory/cortex/internal/store/local"
)

// newTestStore builds a fresh in-memory local backend satisfying Store,
// used across this package's tests in place of a fake — local.Backend
// already implements every method Store needs.
func newTestStore(t *testing.T) *local.Backend {
	t.Helper()
	embedder, err := hashfallback.New(hashfallback.Config{Dimension: 32})
	if err != nil {
		t.Fatalf("hashfallback.New() error = %v", err)
	}
	b, err := local.New(local.Config{Path: ":memory:", Dimension: 32, Embedder: embedder})
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}
