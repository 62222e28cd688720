package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cortexmemory/cortex/internal/consolidate"
	"github.com/cortexmemory/cortex/internal/storeerr"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.HealthCheck(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	status := http.StatusOK
	if !health.Writable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, s.log, status, health)
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

func (s *Server) handlePurgeTombstones(w http.ResponseWriter, r *http.Request) {
	olderThanDays := 30
	if raw := r.URL.Query().Get("older_than_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			olderThanDays = parsed
		}
	}

	count, err := s.store.PurgeTombstones(r.Context(), olderThanDays)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, purgeResponse{Purged: count})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if s.consolidator == nil {
		writeError(w, s.log, storeerr.NewFatalConfig("consolidation is not configured on this server"))
		return
	}

	horizon := consolidate.Horizon(r.PathValue("horizon"))
	switch horizon {
	case consolidate.HorizonDaily, consolidate.HorizonWeekly, consolidate.HorizonMonthly,
		consolidate.HorizonQuarterly, consolidate.HorizonYearly:
	default:
		writeError(w, s.log, storeerr.NewValidation("unknown horizon %q", horizon))
		return
	}

	start := time.Now()
	stats, err := s.consolidator.Run(r.Context(), horizon)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.recordConsolidation(string(horizon), outcome, time.Since(start).Seconds())

	if err != nil {
		writeError(w, s.log, storeerr.NewTransient(err))
		return
	}
	writeJSON(w, s.log, http.StatusOK, stats)
}
