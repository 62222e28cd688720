package local

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
)

// Store inserts memory, enforcing exact-then-semantic duplicate
// detection and tombstone resurrection, per the LVS contract.
func (b *Backend) Store(ctx context.Context, memory *models.Memory) (string, error) {
	if memory == nil || memory.Content == "" {
		return "", storeerr.NewValidation("content must not be empty")
	}

	hash := hashutil.ContentHash(memory.Content)
	tags := hashutil.NormalizeTags(memory.Tags)
	memType := ontology.ValidateType(string(memory.MemoryType))

	// Step 1: exact match takes precedence over everything else.
	existing, err := b.rowByHash(ctx, hash)
	if err != nil {
		return "", storeerr.NewTransient(err)
	}
	if existing != nil && !existing.IsTombstone() {
		return "", storeerr.NewDuplicateExact(hash)
	}

	// Step 2: semantic dedup, only against other live rows, only when
	// the exact hash didn't already match (a tombstone resurrection is
	// never treated as a semantic duplicate of itself).
	if existing == nil && b.dedup.Enabled && len(memory.Embedding) > 0 {
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
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeerr.NewTransient(err)
	}
	defer tx.Rollback()

	meta := memory.Metadata
	meta.MemoryType = memType

	if existing != nil {
		// Resurrection: clear deleted_at, refresh timestamps, keep the
		// new content/tags/metadata supplied by the caller.
		_, err = tx.ExecContext(ctx, `
			UPDATE memories SET content = ?, tags = ?, memory_type = ?, metadata = ?, embedding = ?,
				created_at = ?, updated_at = ?, deleted_at = NULL
			WHERE content_hash = ?`,
			memory.Content, marshalTags(tags), string(memType), marshalMetadata(meta), encodeEmbedding(memory.Embedding),
			nowE, nowE, hash)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (content_hash, content, tags, memory_type, metadata, embedding, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			hash, memory.Content, marshalTags(tags), string(memType), marshalMetadata(meta), encodeEmbedding(memory.Embedding),
			nowE, nowE)
	}
	if err != nil {
		return "", storeerr.NewTransient(fmt.Errorf("insert memory: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return "", storeerr.NewTransient(err)
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
	row := b.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE content_hash = ?`, hash)
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
// live memory within the dedup window whose similarity meets the
// configured threshold, excluding selfHash.
func (b *Backend) findSemanticDuplicate(ctx context.Context, embedding []float32, selfHash string) (string, float32, error) {
	cutoff := toEpoch(time.Now().UTC()) - float64(b.dedup.WindowHours)*3600
	rows, err := b.db.QueryContext(ctx, `
		SELECT content_hash, embedding FROM memories
		WHERE deleted_at IS NULL AND created_at >= ? AND content_hash != ?`, cutoff, selfHash)
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()

	var bestHash string
	var bestSim float32
	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return "", 0, err
		}
		sim := cosineSimilarity(embedding, decodeEmbedding(blob))
		if sim > bestSim {
			bestSim = sim
			bestHash = hash
		}
	}
	if bestHash != "" && bestSim >= b.dedup.Threshold {
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
	_, err = b.db.ExecContext(ctx, `UPDATE memories SET tags = ?, metadata = ?, updated_at = ? WHERE content_hash = ? AND deleted_at IS NULL`,
		marshalTags(tags), marshalMetadata(meta), now, hash)
	if err != nil {
		return false, storeerr.NewTransient(err)
	}
	return true, nil
}

// mergeExtra folds known typed metadata keys from patch into meta's
// typed fields in place, leaving anything unrecognized in meta.Extra for
// forward compatibility.
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
	res, err := b.db.ExecContext(ctx, `UPDATE memories SET deleted_at = ? WHERE content_hash = ? AND deleted_at IS NULL`, now, hash)
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
	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET deleted_at = ? WHERE content_hash = ? AND deleted_at IS NULL`)
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

// DeleteByTimeframe soft-deletes live memories created within
// [start, end], optionally restricted to tag.
func (b *Backend) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	startS := toEpoch(start)
	endS := toEpoch(end)
	now := toEpoch(time.Now().UTC())

	query := `UPDATE memories SET deleted_at = ? WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?`
	args := []any{now, startS, endS}
	if tag != "" {
		query += ` AND (',' || REPLACE(REPLACE(REPLACE(tags, '","', ','), '["', ','), '"]', ',') || ',') LIKE ?`
		args = append(args, "%,"+tag+",%")
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeTombstones permanently removes tombstones older than
// olderThanDays, returning the count purged.
func (b *Backend) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := toEpoch(time.Now().UTC()) - float64(olderThanDays)*86400
	res, err := b.db.ExecContext(ctx, `DELETE FROM memories WHERE deleted_at IS NOT NULL AND deleted_at <= ?`, cutoff)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// HashesInTimeframe returns every live hash created within [start, end],
// optionally restricted to tag. The hybrid backend calls this before
// DeleteByTimeframe to learn which hashes need a queued delete sync op,
// since the bulk UPDATE itself returns only a count.
func (b *Backend) HashesInTimeframe(ctx context.Context, start, end time.Time, tag string) ([]string, error) {
	var wantTag string
	if tag != "" {
		if norm := hashutil.NormalizeTags([]string{tag}); len(norm) > 0 {
			wantTag = norm[0]
		}
	}
	rows, err := b.db.QueryContext(ctx, `SELECT content_hash, tags FROM memories WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?`,
		toEpoch(start), toEpoch(end))
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash, tagsJSON string
		if err := rows.Scan(&hash, &tagsJSON); err != nil {
			return nil, storeerr.NewTransient(err)
		}
		if wantTag != "" {
			if _, ok := tagsToSet(unmarshalTags(tagsJSON))[wantTag]; !ok {
				continue
			}
		}
		out = append(out, hash)
	}
	return out, rows.Err()
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
		var hash, tagsJSON string
		if err := rows.Scan(&hash, &tagsJSON); err != nil {
			return nil, err
		}
		have := tagsToSet(unmarshalTags(tagsJSON))
		if tagSetMatches(have, want, mode) {
			out = append(out, hash)
		}
	}
	return out, rows.Err()
}

func tagSetMatches(have map[string]struct{}, want []string, mode store.TagMode) bool {
	if mode == store.TagModeAll {
		for _, t := range want {
			if _, ok := have[t]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range want {
		if _, ok := have[t]; ok {
			return true
		}
	}
	return false
}
