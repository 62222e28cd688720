package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cortexmemory/cortex/internal/storeerr"
)

type errorBody struct {
	Error string `json:"error"`
	Hash  string `json:"existing_hash,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("api: write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, body := classifyError(err)
	writeJSON(w, log, status, body)
}

// classifyError maps the storage error taxonomy onto HTTP status codes.
// Anything not a *storeerr.Error is treated as an internal error.
func classifyError(err error) (int, errorBody) {
	var serr *storeerr.Error
	if e, ok := err.(*storeerr.Error); ok {
		serr = e
	}
	if serr == nil {
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}

	switch serr.Kind {
	case storeerr.KindValidation:
		return http.StatusBadRequest, errorBody{Error: serr.Message}
	case storeerr.KindPreconditionFailed:
		return http.StatusConflict, errorBody{Error: serr.Message}
	case storeerr.KindNotFound:
		return http.StatusNotFound, errorBody{Error: serr.Message}
	case storeerr.KindDuplicateExact:
		return http.StatusConflict, errorBody{Error: serr.Message}
	case storeerr.KindDuplicateSemantic:
		return http.StatusConflict, errorBody{Error: serr.Message, Hash: serr.ExistingHash}
	case storeerr.KindSchema, storeerr.KindFatalConfig:
		return http.StatusInternalServerError, errorBody{Error: serr.Message}
	case storeerr.KindTransientBackend:
		return http.StatusServiceUnavailable, errorBody{Error: serr.Message}
	default:
		return http.StatusInternalServerError, errorBody{Error: serr.Message}
	}
}
