package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/quality"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

func toResultEnvelope(m models.Memory, score *float32) models.ResultEnvelope {
	return models.ResultEnvelope{
		Content:         m.Content,
		ContentHash:     m.ContentHash,
		Tags:            m.Tags,
		CreatedAt:       hashutil.SecondsSinceEpoch(m.CreatedAt.UnixNano()),
		UpdatedAt:       hashutil.SecondsSinceEpoch(m.UpdatedAt.UnixNano()),
		Metadata:        m.Metadata,
		SimilarityScore: score,
	}
}

// truncate applies response.max_chars / max_response_chars at whole-memory
// boundaries: it never splits a memory's content, and always keeps at
// least one memory if any matched.
func truncate(results []models.ResultEnvelope, maxChars int) models.SearchResponse {
	if maxChars <= 0 || len(results) == 0 {
		return models.SearchResponse{Results: results}
	}

	total := len(results)
	shown := 0
	used := 0
	for _, r := range results {
		size := len(r.Content)
		if shown > 0 && used+size > maxChars {
			break
		}
		used += size
		shown++
	}
	if shown == 0 {
		shown = 1
	}

	if shown >= total {
		return models.SearchResponse{Results: results}
	}
	return models.SearchResponse{
		Results:    results[:shown],
		Truncation: &models.Truncation{Shown: shown, Total: total},
	}
}

func (s *Server) maxCharsFromQuery(raw string) int {
	if raw == "" {
		return s.defaultMaxChars
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return s.defaultMaxChars
	}
	return n
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, s.log, storeerr.NewValidation("q is required"))
		return
	}
	k := 10
	if raw := q.Get("k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			k = parsed
		}
	}

	scored, err := s.store.Retrieve(r.Context(), query, k)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	if s.qualityBoost {
		applyQualityBoost(scored, s.quality.Weight)
	}

	results := make([]models.ResultEnvelope, 0, len(scored))
	for _, sm := range scored {
		score := sm.Score
		results = append(results, toResultEnvelope(*sm.Memory, &score))
	}

	maxChars := s.maxCharsFromQuery(q.Get("max_response_chars"))
	writeJSON(w, s.log, http.StatusOK, truncate(results, maxChars))

	s.recordRetrievalAccess(r.Context(), query, scored)
}

// applyQualityBoost re-sorts scored by (1-w)*similarity + w*persisted
// quality score, descending. Memories with no quality score yet (never
// retrieved before) contribute zero to the blend.
func applyQualityBoost(scored []models.ScoredMemory, weight float64) {
	type entry struct {
		sm      models.ScoredMemory
		blended float64
	}
	entries := make([]entry, len(scored))
	for i, sm := range scored {
		var q float64
		if sm.Memory.Metadata.QualityScore != nil {
			q = *sm.Memory.Metadata.QualityScore
		}
		entries[i] = entry{sm: sm, blended: (1-weight)*float64(sm.Score) + weight*q}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].blended > entries[j].blended })
	for i, e := range entries {
		scored[i] = e.sm
	}
}

// recordRetrievalAccess increments access_count/last_accessed_at and
// recomputes each retrieved memory's composite quality score, persisting
// both after the response has already been written — the scorer must see
// the pre-query access state, never the one its own lookup is about to
// create. Persistence failures are logged, not surfaced, since the
// response has already been sent.
func (s *Server) recordRetrievalAccess(ctx context.Context, query string, scored []models.ScoredMemory) {
	now := time.Now()
	nowSeconds := hashutil.SecondsSinceEpoch(now.UnixNano())
	n := len(scored)
	for i, sm := range scored {
		m := sm.Memory
		composite := s.quality.Score(query, m, i+1, n, now, false)
		quality.RecordAccess(m, nowSeconds)
		quality.AppendAIScore(m, composite)

		delta := store.MetadataDelta{Metadata: map[string]any{
			"access_count":     m.Metadata.AccessCount,
			"last_accessed_at": nowSeconds,
			"quality_score":    composite,
		}}
		if _, err := s.store.UpdateMetadata(ctx, m.ContentHash, delta); err != nil {
			s.log.Warn("quality: record access failed", "hash", m.ContentHash, "error", err)
		}
	}
}

// handleListMemories implements both GET /memories?tag=&mode= and GET
// /memories?substring=, which share a route because both return the
// same ResultEnvelope list shape with no similarity score.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		memories []models.Memory
		err      error
	)

	switch {
	case q.Get("tag") != "" || q.Get("tags") != "":
		var tags []string
		if q.Get("tags") != "" {
			tags = splitCSV(q.Get("tags"))
		} else {
			tags = []string{q.Get("tag")}
		}
		memories, err = s.store.SearchByTag(r.Context(), tags, parseTagMode(q.Get("mode")))
	case q.Get("substring") != "":
		memories, err = s.store.ExactMatch(r.Context(), q.Get("substring"))
	default:
		writeError(w, s.log, storeerr.NewValidation("tag, tags, or substring is required"))
		return
	}
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	results := make([]models.ResultEnvelope, 0, len(memories))
	for _, m := range memories {
		results = append(results, toResultEnvelope(m, nil))
	}

	maxChars := s.maxCharsFromQuery(q.Get("max_response_chars"))
	writeJSON(w, s.log, http.StatusOK, truncate(results, maxChars))
}
