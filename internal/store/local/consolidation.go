package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// SelectOlderThan returns every live memory created at or before cutoff,
// oldest first — the consolidator's per-horizon selection criterion.
func (b *Backend) SelectOlderThan(ctx context.Context, cutoff time.Time) ([]models.Memory, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE deleted_at IS NULL AND created_at <= ? ORDER BY created_at ASC`,
		toEpoch(cutoff))
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storeerr.NewTransient(err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ExportAll returns every memory, live and tombstoned, oldest first —
// the full-fidelity set required by the wire export envelope.
func (b *Backend) ExportAll(ctx context.Context) ([]models.Memory, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY created_at ASC`)
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storeerr.NewTransient(err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// StartConsolidationRun records a new run in the running state and
// returns its id.
func (b *Backend) StartConsolidationRun(ctx context.Context, horizon string) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO consolidation_runs (horizon, state, stage, stats, started_at) VALUES (?, 'running', '', '{}', ?)`,
		horizon, toEpoch(time.Now().UTC()))
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	return res.LastInsertId()
}

// FinishConsolidationRun records the terminal state of a run: success,
// failed, or paused, along with the stage it reached and its
// statistics.
func (b *Backend) FinishConsolidationRun(ctx context.Context, runID int64, state, stage string, stats map[string]any, runErr string) error {
	if stats == nil {
		stats = map[string]any{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return storeerr.NewValidation("marshal consolidation stats: %v", err)
	}
	_, err = b.db.ExecContext(ctx,
		`UPDATE consolidation_runs SET state = ?, stage = ?, stats = ?, finished_at = ?, error = ? WHERE id = ?`,
		state, stage, string(statsJSON), toEpoch(time.Now().UTC()), runErr, runID)
	if err != nil {
		return storeerr.NewTransient(err)
	}
	return nil
}

// ConsolidationRunRecord summarizes one persisted run, surfaced by
// health monitoring as the last-run status per horizon.
type ConsolidationRunRecord struct {
	ID         int64
	Horizon    string
	State      string
	Stage      string
	Stats      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// LastConsolidationRun returns the most recently started run for
// horizon, or nil if none has ever run.
func (b *Backend) LastConsolidationRun(ctx context.Context, horizon string) (*ConsolidationRunRecord, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, horizon, state, stage, stats, started_at, finished_at, error
		 FROM consolidation_runs WHERE horizon = ? ORDER BY started_at DESC LIMIT 1`,
		horizon)

	var r ConsolidationRunRecord
	var startedAt float64
	var finishedAt sql.NullFloat64
	var stage, errMsg sql.NullString
	if err := row.Scan(&r.ID, &r.Horizon, &r.State, &stage, &r.Stats, &startedAt, &finishedAt, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeerr.NewTransient(err)
	}
	r.Stage = stage.String
	r.Error = errMsg.String
	r.StartedAt = fromEpoch(startedAt)
	if finishedAt.Valid {
		t := fromEpoch(finishedAt.Float64)
		r.FinishedAt = &t
	}
	return &r, nil
}
