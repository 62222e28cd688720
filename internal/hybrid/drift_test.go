package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

func TestDriftCheckRepairsStaleLocalMetadata(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	hash, err := b.local.Store(ctx, &models.Memory{Content: "drifted memory", Tags: []string{"old"}})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	newer := models.Memory{
		ContentHash: hash,
		Content:     "drifted memory",
		Tags:        []string{"new", "from-cloud"},
		UpdatedAt:   time.Now().Add(time.Hour),
	}
	cloud.put(newer)

	report, err := b.drift.check(ctx)
	if err != nil {
		t.Fatalf("check() error = %v", err)
	}
	if report.Diverged != 1 || report.Repaired != 1 {
		t.Errorf("report = %+v, want Diverged=1 Repaired=1", report)
	}

	got, _ := b.local.GetByHash(ctx, hash)
	if len(got.Tags) != 2 || got.Tags[0] != "new" {
		t.Errorf("Tags = %v, want the cloud's newer tag set", got.Tags)
	}
}

func TestDriftCheckIgnoresOlderRemoteCopy(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	hash, _ := b.local.Store(ctx, &models.Memory{Content: "local is newer"})

	cloud.put(models.Memory{
		ContentHash: hash,
		Content:     "local is newer",
		UpdatedAt:   time.Now().Add(-time.Hour),
	})

	report, err := b.drift.check(ctx)
	if err != nil {
		t.Fatalf("check() error = %v", err)
	}
	if report.Diverged != 0 {
		t.Errorf("Diverged = %d, want 0 when the local copy is newer", report.Diverged)
	}
}

func TestDriftCheckReportsCounts(t *testing.T) {
	b, cloud := newTestHybrid(t)
	ctx := context.Background()
	b.local.Store(ctx, &models.Memory{Content: "one"})
	b.local.Store(ctx, &models.Memory{Content: "two"})
	cloud.put(models.Memory{ContentHash: "unrelated-remote-hash", Content: "remote only"})

	report, err := b.drift.check(ctx)
	if err != nil {
		t.Fatalf("check() error = %v", err)
	}
	if report.LocalCount != 2 {
		t.Errorf("LocalCount = %d, want 2", report.LocalCount)
	}
	if report.CloudCount != 1 {
		t.Errorf("CloudCount = %d, want 1", report.CloudCount)
	}
}
