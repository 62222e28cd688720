package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/internal/wireformat"
	"github.com/cortexmemory/cortex/pkg/models"
)

// exporter is the optional capability a backend implements to list every
// memory it holds, live and tombstoned, for the wire export envelope.
// Only the directly SQL-backed stores (local, pgstore, and hybrid via
// its local replica) implement it; the HTTP-client cloud backend does
// not, since its remote index has no such bulk-list endpoint.
type exporter interface {
	ExportAll(ctx context.Context) ([]models.Memory, error)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.store.(exporter)
	if !ok {
		writeError(w, s.log, storeerr.NewFatalConfig("this backend does not support bulk export"))
		return
	}

	memories, err := exp.ExportAll(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	data, err := wireformat.EncodeDashboard(memories, time.Now())
	if err != nil {
		writeError(w, s.log, storeerr.NewValidation("encode export: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Error("api: write export", "error", err)
	}
}

type importResponse struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// handleImport replays a wire envelope against the live store. A
// tombstoned memory is stored live and then immediately soft-deleted,
// since Store has no direct way to insert a row already tombstoned;
// this reproduces the end state (a tombstone at the original hash)
// without needing a separate insert path for dead rows.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, s.log, storeerr.NewValidation("read request body: %v", err))
		return
	}

	memories, err := wireformat.Decode(data)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	resp := importResponse{}
	for _, m := range memories {
		memory := m
		tombstoned := memory.DeletedAt != nil
		memory.DeletedAt = nil

		if s.embedder != nil && len(memory.Embedding) == 0 && memory.Content != "" {
			embedding, err := s.embedder.Embed(r.Context(), memory.Content)
			if err == nil {
				memory.Embedding = embedding
			}
		}

		hash, err := s.store.Store(r.Context(), &memory)
		if err != nil && !storeerr.IsKind(err, storeerr.KindDuplicateExact) {
			resp.Failed++
			resp.Errors = append(resp.Errors, err.Error())
			continue
		}
		if hash == "" {
			hash = memory.ContentHash
		}

		if tombstoned {
			if _, err := s.store.Delete(r.Context(), hash); err != nil {
				resp.Failed++
				resp.Errors = append(resp.Errors, err.Error())
				continue
			}
		}
		resp.Imported++
	}

	writeJSON(w, s.log, http.StatusOK, resp)
}
