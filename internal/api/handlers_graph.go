package api

import (
	"net/http"
	"strconv"

	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

type connectedResponse struct {
	Hash     string `json:"hash"`
	Distance int    `json:"distance"`
}

func optionalRelType(raw string) *models.RelationshipType {
	if raw == "" {
		return nil
	}
	rt := models.RelationshipType(raw)
	return &rt
}

func parseDirection(raw string) models.Direction {
	switch models.Direction(raw) {
	case models.DirectionIn, models.DirectionOut:
		return models.Direction(raw)
	default:
		return models.DirectionBoth
	}
}

func (s *Server) handleFindConnected(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	q := r.URL.Query()

	depth := 1
	if raw := q.Get("depth"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			depth = parsed
		}
	}

	connected, err := s.store.FindConnected(r.Context(), hash, depth, optionalRelType(q.Get("rel_type")), parseDirection(q.Get("direction")))
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	out := make([]connectedResponse, 0, len(connected))
	for _, c := range connected {
		out = append(out, connectedResponse{Hash: c.Hash, Distance: c.Distance})
	}
	writeJSON(w, s.log, http.StatusOK, out)
}

type pathResponse struct {
	Path []string `json:"path"`
}

func (s *Server) handleShortestPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := q.Get("from")
	to := q.Get("to")
	if from == "" || to == "" {
		writeError(w, s.log, storeerr.NewValidation("from and to are required"))
		return
	}

	path, err := s.store.ShortestPath(r.Context(), from, to, optionalRelType(q.Get("rel_type")))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, pathResponse{Path: path})
}

type subgraphResponse struct {
	Nodes []models.ResultEnvelope `json:"nodes"`
	Edges []models.Association    `json:"edges"`
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	radius := 1
	if raw := r.URL.Query().Get("radius"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			radius = parsed
		}
	}

	sub, err := s.store.GetSubgraph(r.Context(), hash, radius)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	nodes := make([]models.ResultEnvelope, 0, len(sub.Nodes))
	for _, m := range sub.Nodes {
		nodes = append(nodes, toResultEnvelope(m, nil))
	}
	writeJSON(w, s.log, http.StatusOK, subgraphResponse{Nodes: nodes, Edges: sub.Edges})
}
