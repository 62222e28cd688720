package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// GetByHash returns a live memory by hash, or (nil, nil) if absent or
// tombstoned.
func (b *Backend) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE content_hash = $1 AND deleted_at IS NULL`, hash)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	return m, nil
}

// Retrieve embeds queryText and returns the top-k live memories by
// descending cosine similarity, computed in Go over the plain
// DOUBLE PRECISION[] embedding column.
func (b *Backend) Retrieve(ctx context.Context, queryText string, k int) ([]models.ScoredMemory, error) {
	return b.Recall(ctx, queryText, nil, nil, k)
}

// Recall performs semantic retrieval restricted to an optional time
// window [start, end].
func (b *Backend) Recall(ctx context.Context, queryText string, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	if b.embedder == nil {
		return nil, storeerr.NewFatalConfig("pgstore: no embedding provider configured")
	}
	queryEmbedding, err := b.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, storeerr.NewTransient(fmt.Errorf("embed query: %w", err))
	}
	return b.retrieveByEmbedding(ctx, queryEmbedding, start, end, k)
}

// SearchByTag returns live memories matching tags under mode, ordered by
// created_at descending.
func (b *Backend) SearchByTag(ctx context.Context, tags []string, mode store.TagMode) ([]models.Memory, error) {
	want := hashutil.NormalizeTags(tags)
	if len(want) == 0 {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE deleted_at IS NULL ORDER BY created_at DESC`)
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
		if tagSetMatches(tagsToSet(m.Tags), want, mode) {
			out = append(out, *m)
		}
	}
	return out, rows.Err()
}

// ExactMatch returns live memories whose content contains substr,
// case-insensitively, ordered by created_at descending.
func (b *Backend) ExactMatch(ctx context.Context, substr string) ([]models.Memory, error) {
	needle := strings.ToLower(substr)
	rows, err := b.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE deleted_at IS NULL ORDER BY created_at DESC`)
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
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, *m)
		}
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

// HealthCheck reports backend status without mutating state.
func (b *Backend) HealthCheck(ctx context.Context) (models.HealthCheck, error) {
	hc := models.HealthCheck{Backend: "pgstore"}
	if err := b.db.PingContext(ctx); err != nil {
		hc.Writable = false
		return hc, storeerr.NewTransient(err)
	}

	var live, tombstones int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`).Scan(&live); err != nil {
		return hc, storeerr.NewTransient(err)
	}
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted_at IS NOT NULL`).Scan(&tombstones); err != nil {
		return hc, storeerr.NewTransient(err)
	}
	hc.Counts = map[string]int{"live": live, "tombstones": tombstones}
	hc.Writable = true
	return hc, nil
}

// retrieveByEmbedding scores every live memory against queryEmbedding and
// returns the top-k, restricted to an optional [start, end] window.
func (b *Backend) retrieveByEmbedding(ctx context.Context, queryEmbedding []float32, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	if k <= 0 {
		k = 10
	}
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE deleted_at IS NULL`
	var args []any
	argN := 1
	if start != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argN)
		args = append(args, toEpoch(*start))
		argN++
	}
	if end != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argN)
		args = append(args, toEpoch(*end))
		argN++
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var scored []models.ScoredMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storeerr.NewTransient(err)
		}
		sim := cosineSimilarity(queryEmbedding, m.Embedding)
		scored = append(scored, models.ScoredMemory{Memory: m, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.NewTransient(err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
