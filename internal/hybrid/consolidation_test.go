package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

func TestConsolidationMethodsDelegateToLocal(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	b.local.Store(ctx, &models.Memory{Content: "old enough to consolidate"})

	memories, err := b.SelectOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectOlderThan() error = %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("len(memories) = %d, want 1", len(memories))
	}

	runID, err := b.StartConsolidationRun(ctx, "daily")
	if err != nil {
		t.Fatalf("StartConsolidationRun() error = %v", err)
	}
	if err := b.FinishConsolidationRun(ctx, runID, "success", "associate", map[string]any{"processed": 1}, ""); err != nil {
		t.Fatalf("FinishConsolidationRun() error = %v", err)
	}

	record, err := b.local.LastConsolidationRun(ctx, "daily")
	if err != nil {
		t.Fatalf("LastConsolidationRun() error = %v", err)
	}
	if record == nil || record.State != "success" {
		t.Errorf("record = %+v, want state=success", record)
	}
}

func TestExportAllDelegatesToLocal(t *testing.T) {
	b, _ := newTestHybrid(t)
	ctx := context.Background()
	b.local.Store(ctx, &models.Memory{Content: "export me"})

	all, err := b.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(all) = %d, want 1", len(all))
	}
}
