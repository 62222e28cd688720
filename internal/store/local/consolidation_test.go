package local

import (
	"context"
	"testing"
	"time"
)

func TestSelectOlderThanExcludesRecentAndTombstoned(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	old := storeContent(t, b, "old memory")
	dead := storeContent(t, b, "dead old memory")
	storeContent(t, b, "recent memory")
	b.Delete(ctx, dead)

	memories, err := b.SelectOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectOlderThan() error = %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("len(memories) = %d, want 2 (old + recent, tombstone excluded)", len(memories))
	}

	cutoffBeforeAny, err := b.SelectOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SelectOlderThan() error = %v", err)
	}
	if len(cutoffBeforeAny) != 0 {
		t.Errorf("len(cutoffBeforeAny) = %d, want 0", len(cutoffBeforeAny))
	}
	_ = old
}

func TestExportAllIncludesTombstones(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	live := storeContent(t, b, "live export")
	dead := storeContent(t, b, "dead export")
	b.Delete(ctx, dead)

	all, err := b.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	var sawDead bool
	for _, m := range all {
		if m.ContentHash == dead {
			sawDead = true
			if m.DeletedAt == nil {
				t.Error("expected the tombstoned export row to carry DeletedAt")
			}
		}
	}
	if !sawDead {
		t.Error("expected ExportAll to include the tombstoned memory")
	}
	_ = live
}

func TestConsolidationRunLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	runID, err := b.StartConsolidationRun(ctx, "daily")
	if err != nil {
		t.Fatalf("StartConsolidationRun() error = %v", err)
	}
	if runID == 0 {
		t.Fatal("expected a non-zero run id")
	}

	record, err := b.LastConsolidationRun(ctx, "daily")
	if err != nil {
		t.Fatalf("LastConsolidationRun() error = %v", err)
	}
	if record == nil || record.State != "running" {
		t.Fatalf("record = %+v, want state=running", record)
	}

	err = b.FinishConsolidationRun(ctx, runID, "success", "cluster", map[string]any{"processed": 3}, "")
	if err != nil {
		t.Fatalf("FinishConsolidationRun() error = %v", err)
	}

	record, err = b.LastConsolidationRun(ctx, "daily")
	if err != nil {
		t.Fatalf("LastConsolidationRun() error = %v", err)
	}
	if record.State != "success" || record.Stage != "cluster" {
		t.Errorf("record = %+v, want state=success stage=cluster", record)
	}
	if record.FinishedAt == nil {
		t.Error("expected FinishedAt to be set after FinishConsolidationRun")
	}
}

func TestLastConsolidationRunReturnsNilWhenNoneExist(t *testing.T) {
	b := newTestBackend(t)
	record, err := b.LastConsolidationRun(context.Background(), "weekly")
	if err != nil {
		t.Fatalf("LastConsolidationRun() error = %v", err)
	}
	if record != nil {
		t.Errorf("record = %+v, want nil", record)
	}
}
