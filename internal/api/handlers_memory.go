package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

type storeRequest struct {
	Content    string                `json:"content"`
	Tags       []string              `json:"tags"`
	MemoryType string                `json:"memory_type"`
	Metadata   models.MemoryMetadata `json:"metadata"`
}

type storeResponse struct {
	ContentHash string `json:"content_hash"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, storeerr.NewValidation("malformed request body: %v", err))
		return
	}

	memory := &models.Memory{
		Content:    req.Content,
		Tags:       req.Tags,
		MemoryType: ontology.ValidateType(req.MemoryType),
		Metadata:   req.Metadata,
	}

	if s.embedder != nil && memory.Content != "" {
		embedding, err := s.embedder.Embed(r.Context(), memory.Content)
		if err != nil {
			writeError(w, s.log, storeerr.NewTransient(err))
			return
		}
		memory.Embedding = embedding
	}

	hash, err := s.store.Store(r.Context(), memory)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusCreated, storeResponse{ContentHash: hash})
}

type updateMetadataRequest struct {
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

type updatedResponse struct {
	Updated bool `json:"updated"`
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, storeerr.NewValidation("malformed request body: %v", err))
		return
	}

	ok, err := s.store.UpdateMetadata(r.Context(), hash, store.MetadataDelta{
		Tags:     req.Tags,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !ok {
		writeError(w, s.log, storeerr.NewNotFound("memory %s not found", hash))
		return
	}
	writeJSON(w, s.log, http.StatusOK, updatedResponse{Updated: true})
}

type deletedResponse struct {
	Deleted bool `json:"deleted"`
}

type deletedCountResponse struct {
	DeletedCount int `json:"deleted_count"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	ok, err := s.store.Delete(r.Context(), hash)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, deletedResponse{Deleted: ok})
}

// handleBulkDelete implements the three bulk-delete shapes (by tag(s), by
// timeframe) behind the confirm_count safety rule: the caller must send
// the exact count that will be removed (learned beforehand, e.g. via GET
// /memories); a request without confirm_count is rejected with a
// validation error and reports no count, and a mismatch fails the call
// before anything is deleted.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	confirmStr := q.Get("confirm_count")
	if confirmStr == "" {
		writeError(w, s.log, storeerr.NewValidation("confirm_count is required for bulk delete"))
		return
	}
	confirm, err := strconv.Atoi(confirmStr)
	if err != nil {
		writeError(w, s.log, storeerr.NewValidation("confirm_count must be an integer"))
		return
	}

	switch {
	case q.Get("tags") != "":
		tags := splitCSV(q.Get("tags"))
		mode := parseTagMode(q.Get("mode"))
		matched, err := s.store.SearchByTag(r.Context(), tags, mode)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		if len(matched) != confirm {
			writeError(w, s.log, storeerr.NewPreconditionFailed("confirm_count %d does not match current match count %d", confirm, len(matched)))
			return
		}
		count, err := s.store.DeleteByTags(r.Context(), tags, mode)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, s.log, http.StatusOK, deletedCountResponse{DeletedCount: count})

	case q.Get("tag") != "":
		tag := q.Get("tag")
		matched, err := s.store.SearchByTag(r.Context(), []string{tag}, store.TagModeAny)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		if len(matched) != confirm {
			writeError(w, s.log, storeerr.NewPreconditionFailed("confirm_count %d does not match current match count %d", confirm, len(matched)))
			return
		}
		count, err := s.store.DeleteByTag(r.Context(), tag)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, s.log, http.StatusOK, deletedCountResponse{DeletedCount: count})

	case q.Get("start") != "" && q.Get("end") != "":
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			writeError(w, s.log, storeerr.NewValidation("start must be RFC3339: %v", err))
			return
		}
		end, err := time.Parse(time.RFC3339, q.Get("end"))
		if err != nil {
			writeError(w, s.log, storeerr.NewValidation("end must be RFC3339: %v", err))
			return
		}
		tag := q.Get("tag_filter")

		matched, err := s.countByTimeframe(r.Context(), start, end, tag)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		if matched != confirm {
			writeError(w, s.log, storeerr.NewPreconditionFailed("confirm_count %d does not match current match count %d", confirm, matched))
			return
		}
		count, err := s.store.DeleteByTimeframe(r.Context(), start, end, tag)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, s.log, http.StatusOK, deletedCountResponse{DeletedCount: count})

	default:
		writeError(w, s.log, storeerr.NewValidation("bulk delete requires tag, tags, or start+end"))
	}
}

// countByTimeframe counts live memories that DeleteByTimeframe would
// remove, without deleting them, so the confirm_count safety rule can be
// enforced without a side effect. There is no dedicated list-by-timeframe
// query, so this reuses ExactMatch with an empty substring (which matches
// every live memory) and filters client-side.
func (s *Server) countByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	all, err := s.store.ExactMatch(ctx, "")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range all {
		if m.CreatedAt.Before(start) || m.CreatedAt.After(end) {
			continue
		}
		if tag != "" && !containsTag(m.Tags, tag) {
			continue
		}
		count++
	}
	return count, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (s *Server) handleGetByHash(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	memory, err := s.store.GetByHash(r.Context(), hash)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if memory == nil {
		writeError(w, s.log, storeerr.NewNotFound("memory %s not found", hash))
		return
	}
	writeJSON(w, s.log, http.StatusOK, toResultEnvelope(*memory, nil))
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTagMode(raw string) store.TagMode {
	if store.TagMode(raw) == store.TagModeAll {
		return store.TagModeAll
	}
	return store.TagModeAny
}
