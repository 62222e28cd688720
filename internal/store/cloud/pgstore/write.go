package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
	"github.com/lib/pq"
)

func pqTextArray(tags []string) pq.StringArray { return pq.StringArray(tags) }

// Store inserts memory, enforcing exact-then-semantic duplicate detection
// and tombstone resurrection, matching the local backend's contract.
func (b *Backend) Store(ctx context.Context, memory *models.Memory) (string, error) {
	if memory == nil || memory.Content == "" {
		return "", storeerr.NewValidation("content must not be empty")
	}

	hash := hashutil.ContentHash(memory.Content)
	tags := hashutil.NormalizeTags(memory.Tags)
	memType := ontology.ValidateType(string(memory.MemoryType))

	existing, err := b.rowByHash(ctx, hash)
	if err != nil {
		return "", storeerr.NewTransient(err)
	}
	if existing != nil && !existing.IsTombstone() {
		return "", storeerr.NewDuplicateExact(hash)
	}

	if existing == nil && len(memory.Embedding) > 0 {
		dupHash, sim, err := b.findSemanticDuplicate(ctx, memory.Embedding, hash)
		if err != nil {
			return "", storeerr.NewTransient(err)
		}
		if dupHash != "" {
			return "", storeerr.NewDuplicateSemantic(dupHash, sim)
		}
	}

	now := time.Now().UTC()
	nowE := toEpoch(now)

	meta := memory.Metadata
	meta.MemoryType = memType

	if existing != nil {
		_, err = b.db.ExecContext(ctx, `
			UPDATE memories SET content = $1, tags = $2, memory_type = $3, metadata = $4, embedding = $5,
				created_at = $6, updated_at = $7, deleted_at = NULL
			WHERE content_hash = $8`,
			memory.Content, pqTextArray(tags), string(memType), marshalMetadata(meta), encodeEmbedding(memory.Embedding),
			nowE, nowE, hash)
	} else {
		_, err = b.db.ExecContext(ctx, `
			INSERT INTO memories (content_hash, content, tags, memory_type, metadata, embedding, created_at, updated_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
			hash, memory.Content, pqTextArray(tags), string(memType), marshalMetadata(meta), encodeEmbedding(memory.Embedding),
			nowE, nowE)
	}
	if err != nil {
		return "", storeerr.NewTransient(fmt.Errorf("insert memory: %w", err))
	}

	memory.ContentHash = hash
	memory.Tags = tags
	memory.CreatedAt = now
	memory.UpdatedAt = now
	return hash, nil
}

// rowByHash returns the row for hash regardless of tombstone state, or
// nil if no row exists at all.
func (b *Backend) rowByHash(ctx context.Context, hash string) (*models.Memory, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE content_hash = $1`, hash)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// findSemanticDuplicate returns the hash and similarity of the nearest
// live memory whose similarity meets threshold, excluding selfHash. This
// transport has no configurable dedup window or threshold: every write
// with an embedding is checked against all live rows at the fixed,
// conservative threshold below, which guards against accidental exact
// re-embedding collisions during direct-Postgres use.
func (b *Backend) findSemanticDuplicate(ctx context.Context, embedding []float32, selfHash string) (string, float32, error) {
	const threshold float32 = 0.95
	rows, err := b.db.QueryContext(ctx, `
		SELECT content_hash, embedding FROM memories
		WHERE deleted_at IS NULL AND content_hash != $1`, selfHash)
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()

	var bestHash string
	var bestSim float32
	for rows.Next() {
		var hash string
		var embedArr pq.Float64Array
		if err := rows.Scan(&hash, &embedArr); err != nil {
			return "", 0, err
		}
		sim := cosineSimilarity(embedding, decodeEmbedding(embedArr))
		if sim > bestSim {
			bestSim = sim
			bestHash = hash
		}
	}
	if bestHash != "" && bestSim >= threshold {
		return bestHash, bestSim, nil
	}
	return "", 0, rows.Err()
}

// UpdateMetadata applies a partial metadata patch and optional tag
// replacement to a live memory.
func (b *Backend) UpdateMetadata(ctx context.Context, hash string, delta store.MetadataDelta) (bool, error) {
	existing, err := b.GetByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	meta := existing.Metadata
	if delta.Metadata != nil {
		mergeExtra(&meta, delta.Metadata)
	}
	tags := existing.Tags
	if delta.Tags != nil {
		tags = hashutil.NormalizeTags(delta.Tags)
	}

	now := toEpoch(time.Now().UTC())
	_, err = b.db.ExecContext(ctx, `UPDATE memories SET tags = $1, metadata = $2, updated_at = $3 WHERE content_hash = $4 AND deleted_at IS NULL`,
		pqTextArray(tags), marshalMetadata(meta), now, hash)
	if err != nil {
		return false, storeerr.NewTransient(err)
	}
	return true, nil
}

func mergeExtra(meta *models.MemoryMetadata, patch map[string]any) {
	extra := meta.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	for k, v := range patch {
		switch k {
		case "quality_score":
			if f, ok := toFloat(v); ok {
				meta.QualityScore = &f
			}
		case "access_count":
			if f, ok := toFloat(v); ok {
				meta.AccessCount = int(f)
			}
		case "last_accessed_at":
			if f, ok := toFloat(v); ok {
				meta.LastAccessedAt = &f
			}
		case "episode_id":
			if s, ok := v.(string); ok {
				meta.EpisodeID = s
			}
		case "credibility":
			if f, ok := toFloat(v); ok {
				meta.Credibility = &f
			}
		default:
			extra[k] = v
		}
	}
	meta.Extra = extra
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Delete soft-deletes a single memory. A missing or already-tombstoned
// hash returns (false, nil).
func (b *Backend) Delete(ctx context.Context, hash string) (bool, error) {
	now := toEpoch(time.Now().UTC())
	res, err := b.db.ExecContext(ctx, `UPDATE memories SET deleted_at = $1 WHERE content_hash = $2 AND deleted_at IS NULL`, now, hash)
	if err != nil {
		return false, storeerr.NewTransient(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByTag soft-deletes every live memory bearing tag.
func (b *Backend) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return b.DeleteByTags(ctx, []string{tag}, store.TagModeAny)
}

// DeleteByTags soft-deletes every live memory matching tags under mode.
func (b *Backend) DeleteByTags(ctx context.Context, tags []string, mode store.TagMode) (int, error) {
	hashes, err := b.hashesMatchingTags(ctx, tags, mode)
	if err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	now := toEpoch(time.Now().UTC())
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET deleted_at = $1 WHERE content_hash = $2 AND deleted_at IS NULL`)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	defer stmt.Close()
	count := 0
	for _, h := range hashes {
		res, err := stmt.ExecContext(ctx, now, h)
		if err != nil {
			return 0, storeerr.NewTransient(err)
		}
		n, _ := res.RowsAffected()
		count += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeerr.NewTransient(err)
	}
	return count, nil
}

// DeleteByTimeframe soft-deletes live memories created within [start, end],
// optionally restricted to tag.
func (b *Backend) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	startS := toEpoch(start)
	endS := toEpoch(end)
	now := toEpoch(time.Now().UTC())

	query := `UPDATE memories SET deleted_at = $1 WHERE deleted_at IS NULL AND created_at BETWEEN $2 AND $3`
	args := []any{now, startS, endS}
	if tag != "" {
		if norm := hashutil.NormalizeTags([]string{tag}); len(norm) > 0 {
			query += ` AND $4 = ANY(tags)`
			args = append(args, norm[0])
		}
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeTombstones permanently removes tombstones older than olderThanDays,
// returning the count purged.
func (b *Backend) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := toEpoch(time.Now().UTC()) - float64(olderThanDays)*86400
	res, err := b.db.ExecContext(ctx, `DELETE FROM memories WHERE deleted_at IS NOT NULL AND deleted_at <= $1`, cutoff)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (b *Backend) hashesMatchingTags(ctx context.Context, tags []string, mode store.TagMode) ([]string, error) {
	want := hashutil.NormalizeTags(tags)
	if len(want) == 0 {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT content_hash, tags FROM memories WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash string
		var tags pq.StringArray
		if err := rows.Scan(&hash, &tags); err != nil {
			return nil, err
		}
		have := tagsToSet([]string(tags))
		if tagSetMatches(have, want, mode) {
			out = append(out, hash)
		}
	}
	return out, rows.Err()
}
