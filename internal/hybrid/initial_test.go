package hybrid

import (
	"context"
	"testing"

	"github.com/cortexmemory/cortex/pkg/models"
)

func TestInitialSyncPullsRemoteMemories(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	cloud.put(models.Memory{ContentHash: "remote-hash-1", Content: "from the cloud"})

	pulled, skipped, err := b.InitialSync(ctx)
	if err != nil {
		t.Fatalf("InitialSync() error = %v", err)
	}
	if pulled != 1 || skipped != 0 {
		t.Errorf("InitialSync() = (%d, %d), want (1, 0)", pulled, skipped)
	}

	got, err := b.local.GetByHash(ctx, "remote-hash-1")
	if err != nil || got == nil {
		t.Fatalf("expected the pulled memory to be present locally, got (%v, %v)", got, err)
	}
}

func TestInitialSyncSkipsLocallyTombstonedHash(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	hash, _ := b.local.Store(ctx, &models.Memory{Content: "deleted on this device"})
	b.local.Delete(ctx, hash)
	cloud.put(models.Memory{ContentHash: hash, Content: "deleted on this device"})

	pulled, skipped, err := b.InitialSync(ctx)
	if err != nil {
		t.Fatalf("InitialSync() error = %v", err)
	}
	if pulled != 0 || skipped != 1 {
		t.Errorf("InitialSync() = (%d, %d), want (0, 1)", pulled, skipped)
	}
	if got, _ := b.local.GetByHash(ctx, hash); got != nil {
		t.Error("expected the tombstoned memory to stay deleted, not resurrect from the remote pull")
	}
}

func TestInitialSyncSkipsAlreadyPresentHash(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	hash, _ := b.local.Store(ctx, &models.Memory{Content: "already here"})
	cloud.put(models.Memory{ContentHash: hash, Content: "already here"})

	pulled, skipped, err := b.InitialSync(ctx)
	if err != nil {
		t.Fatalf("InitialSync() error = %v", err)
	}
	if pulled != 0 {
		t.Errorf("pulled = %d, want 0 (already present locally)", pulled)
	}
	_ = skipped
}
