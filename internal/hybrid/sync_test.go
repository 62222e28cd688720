package hybrid

import (
	"context"
	"testing"

	"github.com/cortexmemory/cortex/pkg/models"
)

func TestDrainOnceAppliesStoreOpToCloud(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	hash, err := b.Store(ctx, &models.Memory{Content: "sync me"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	n := b.sync.drainOnce(ctx)
	if n != 1 {
		t.Fatalf("drainOnce() = %d, want 1", n)
	}
	if cloud.count() != 1 {
		t.Fatalf("cloud.count() = %d, want 1", cloud.count())
	}
	if _, ok := cloud.memories[hash]; !ok {
		t.Errorf("expected the cloud to hold hash %s", hash)
	}

	depth, _ := b.local.QueueDepth(ctx)
	if depth != 0 {
		t.Errorf("QueueDepth() after drain = %d, want 0", depth)
	}
}

func TestDrainOnceDeleteAlreadyMissingIsAcked(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	hash, _ := b.Store(ctx, &models.Memory{Content: "delete before it ever synced"})
	b.Delete(ctx, hash)

	// Store then Delete coalesce to a single pending delete op, per
	// EnqueueSync's coalescing rule.
	n := b.sync.drainOnce(ctx)
	if n != 1 {
		t.Fatalf("drainOnce() = %d, want 1", n)
	}
	depth, _ := b.local.QueueDepth(ctx)
	if depth != 0 {
		t.Errorf("QueueDepth() = %d, want 0 (not-found delete treated as converged)", depth)
	}
}

func TestDrainOnceRequeuesOnTransientFailure(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	cloud.storeErr = context.DeadlineExceeded
	b.Store(ctx, &models.Memory{Content: "will fail to sync"})

	b.sync.drainOnce(ctx)

	depth, _ := b.local.QueueDepth(ctx)
	if depth != 1 {
		t.Fatalf("QueueDepth() after a failed attempt = %d, want 1 (requeued)", depth)
	}

	ops, err := b.local.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueBatch() error = %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("len(ops) = %d, want 0 before the backoff elapses", len(ops))
	}
}

func TestDrainOnceParksAfterMaxAttempts(t *testing.T) {
	b, cloud := newTestHybridWithConfig(t, Config{MaxSyncAttempts: 1})
	ctx := context.Background()
	cloud.storeErr = context.DeadlineExceeded
	b.Store(ctx, &models.Memory{Content: "will be parked"})

	b.sync.drainOnce(ctx)

	depth, _ := b.local.QueueDepth(ctx)
	if depth != 0 {
		t.Errorf("QueueDepth() = %d, want 0 after parking to dead letters", depth)
	}
}

func TestApplyUpsertFallsBackToUpdateMetadataOnCloudDuplicate(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	m := &models.Memory{Content: "already on the cloud side"}
	hash, _ := b.Store(ctx, m)
	cloud.put(models.Memory{ContentHash: hash, Content: m.Content, Tags: []string{"preexisting"}})

	n := b.sync.drainOnce(ctx)
	if n != 1 {
		t.Fatalf("drainOnce() = %d, want 1", n)
	}

	got, _ := cloud.GetByHash(ctx, hash)
	if got == nil {
		t.Fatal("expected the cloud copy to still exist")
	}
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want the local memory's (empty) tag set after the metadata fallback", got.Tags)
	}
	depth, _ := b.local.QueueDepth(ctx)
	if depth != 0 {
		t.Errorf("QueueDepth() = %d, want 0 after a successful fallback update", depth)
	}
}
