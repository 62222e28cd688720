package hybrid

import (
	"context"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// SelectOlderThan, StartConsolidationRun and FinishConsolidationRun
// delegate to the local store: the consolidator runs against local
// state and writes (cluster summaries, archival deletes) flow back out
// through the normal hybrid write path, so they sync like anything
// else.
// ExportAll returns every memory known to the local store, live and
// tombstoned, for the wire export envelope. The cloud side is never
// consulted: the local store is always the complete, authoritative
// replica in hybrid mode.
func (b *Backend) ExportAll(ctx context.Context) ([]models.Memory, error) {
	return b.local.ExportAll(ctx)
}

func (b *Backend) SelectOlderThan(ctx context.Context, cutoff time.Time) ([]models.Memory, error) {
	return b.local.SelectOlderThan(ctx, cutoff)
}

func (b *Backend) StartConsolidationRun(ctx context.Context, horizon string) (int64, error) {
	return b.local.StartConsolidationRun(ctx, horizon)
}

func (b *Backend) FinishConsolidationRun(ctx context.Context, runID int64, state, stage string, stats map[string]any, runErr string) error {
	return b.local.FinishConsolidationRun(ctx, runID, state, stage, stats, runErr)
}
