package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/cortexmemory/cortex/internal/embeddings/hashfallback"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/store/local"
	"github.com/cortexmemory/cortex/pkg/models"
)

func newTestHybrid(t *testing.T) (*Backend, *fakeCloud) {
	t.Helper()
	return newTestHybridWithConfig(t, Config{})
}

// newTestHybridWithConfig builds a hybrid backend over a fresh in-memory
// local store and fake cloud, applying any non-zero fields from overrides.
// Local, Cloud and the intervals are always filled in so the sync worker
// never fires on a real ticker during a test.
func newTestHybridWithConfig(t *testing.T, overrides Config) (*Backend, *fakeCloud) {
	t.Helper()
	embedder, _ := hashfallback.New(hashfallback.Config{Dimension: 32})
	localBackend, err := local.New(local.Config{Path: ":memory:", Dimension: 32, Embedder: embedder})
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	cloud := newFakeCloud()

	cfg := overrides
	cfg.Local = localBackend
	cfg.Cloud = cloud
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = time.Hour // tests drive the worker directly, never via ticker
	}
	if cfg.DriftInterval == 0 {
		cfg.DriftInterval = time.Hour
	}

	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, cloud
}

func TestNewRequiresBothBackends(t *testing.T) {
	if _, err := New(Config{Cloud: newFakeCloud()}); err == nil {
		t.Error("expected an error when Local is nil")
	}
	localBackend, _ := local.New(local.Config{Path: ":memory:"})
	defer localBackend.Close()
	if _, err := New(Config{Local: localBackend}); err == nil {
		t.Error("expected an error when Cloud is nil")
	}
}

func TestStoreEnqueuesSyncOp(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()

	hash, err := b.Store(ctx, &models.Memory{Content: "hybrid write"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	depth, err := b.local.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() error = %v", err)
	}
	if depth != 1 {
		t.Errorf("QueueDepth() = %d, want 1", depth)
	}

	ops, err := b.local.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueBatch() error = %v", err)
	}
	if len(ops) != 1 || ops[0].ContentHash != hash || ops[0].OpType != local.SyncOpStore {
		t.Errorf("ops = %+v, want one store op for %s", ops, hash)
	}
}

func TestDeleteEnqueuesDeleteOp(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	hash, _ := b.Store(ctx, &models.Memory{Content: "to be deleted"})
	b.local.AckSynced(ctx, mustSingleOpID(t, b))

	ok, err := b.Delete(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("Delete() = (%v, %v)", ok, err)
	}
	ops, _ := b.local.DequeueBatch(ctx, 10)
	if len(ops) != 1 || ops[0].OpType != local.SyncOpDelete {
		t.Errorf("ops = %+v, want one delete op", ops)
	}
}

func mustSingleOpID(t *testing.T, b *Backend) int64 {
	t.Helper()
	ops, err := b.local.DequeueBatch(context.Background(), 10)
	if err != nil || len(ops) != 1 {
		t.Fatalf("expected exactly one queued op, got %+v (err=%v)", ops, err)
	}
	return ops[0].ID
}

func TestReadsServeFromLocalOnly(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	b.Store(ctx, &models.Memory{Content: "only local has this"})
	if cloud.count() != 0 {
		t.Fatal("expected the fake cloud to remain empty until the sync worker runs")
	}

	results, err := b.Retrieve(ctx, "only local has this", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) == 0 {
		t.Error("expected Retrieve to find the memory from the local store")
	}
}

func TestHealthCheckReportsQueueDepth(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	b.Store(ctx, &models.Memory{Content: "pending sync"})

	hc, err := b.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if hc.Backend != "hybrid" {
		t.Errorf("Backend = %q, want hybrid", hc.Backend)
	}
	if hc.Counts["sync_queue_depth"] != 1 {
		t.Errorf("sync_queue_depth = %d, want 1", hc.Counts["sync_queue_depth"])
	}
}

func TestCloudHealthDelegatesToCloud(t *testing.T) {
	b, _ := newTestHybrid(t)
	hc, err := b.CloudHealth(context.Background())
	if err != nil {
		t.Fatalf("CloudHealth() error = %v", err)
	}
	if hc.Backend != "cloud" {
		t.Errorf("Backend = %q, want cloud", hc.Backend)
	}
}

func TestDeleteByTagsEnqueuesPerHash(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	b.Store(ctx, &models.Memory{Content: "tagged one", Tags: []string{"x"}})
	b.local.DequeueBatch(ctx, 10) // drain the store op before asserting on deletes

	n, err := b.DeleteByTags(ctx, []string{"x"}, store.TagModeAny)
	if err != nil {
		t.Fatalf("DeleteByTags() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteByTags() = %d, want 1", n)
	}
	ops, _ := b.local.DequeueBatch(ctx, 10)
	if len(ops) != 1 || ops[0].OpType != local.SyncOpDelete {
		t.Errorf("ops = %+v, want one delete op", ops)
	}
}
