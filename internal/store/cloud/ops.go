package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
)

// Store mirrors LVS.Store against the remote account. Duplicate and
// validation errors are surfaced by kind, matching the local backend.
func (b *Backend) Store(ctx context.Context, memory *models.Memory) (string, error) {
	if err := b.ensureMigrated(ctx); err != nil {
		return "", err
	}
	var resp struct {
		ContentHash string `json:"content_hash"`
		ErrorKind   string `json:"error_kind,omitempty"`
		Existing    string `json:"existing_hash,omitempty"`
	}
	err := b.doJSON(ctx, "POST", "/memories", toWire(memory), &resp)
	if err != nil {
		return "", classifyWireError(err)
	}
	switch resp.ErrorKind {
	case "duplicate_exact":
		return "", storeerr.NewDuplicateExact(resp.ContentHash)
	case "duplicate_semantic":
		return "", storeerr.NewDuplicateSemantic(resp.Existing, 0)
	}
	return resp.ContentHash, nil
}

// UpdateMetadata applies delta to a live remote memory.
func (b *Backend) UpdateMetadata(ctx context.Context, hash string, delta store.MetadataDelta) (bool, error) {
	if err := b.ensureMigrated(ctx); err != nil {
		return false, err
	}
	var resp struct {
		Success bool `json:"success"`
	}
	err := b.doJSON(ctx, "PATCH", "/memories/"+hash, delta, &resp)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classifyWireError(err)
	}
	return resp.Success, nil
}

// Delete soft-deletes hash remotely.
func (b *Backend) Delete(ctx context.Context, hash string) (bool, error) {
	var resp struct {
		Success bool `json:"success"`
	}
	err := b.doJSON(ctx, "DELETE", "/memories/"+hash, nil, &resp)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classifyWireError(err)
	}
	return resp.Success, nil
}

// DeleteByTag soft-deletes every remote live memory bearing tag.
func (b *Backend) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return b.DeleteByTags(ctx, []string{tag}, store.TagModeAny)
}

// DeleteByTags soft-deletes every remote live memory matching tags.
func (b *Backend) DeleteByTags(ctx context.Context, tags []string, mode store.TagMode) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	body := struct {
		Tags []string      `json:"tags"`
		Mode store.TagMode `json:"mode"`
	}{tags, mode}
	if err := b.doJSON(ctx, "DELETE", "/memories", body, &resp); err != nil {
		return 0, classifyWireError(err)
	}
	return resp.Count, nil
}

// DeleteByTimeframe soft-deletes remote live memories in [start, end].
func (b *Backend) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	body := struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Tag   string  `json:"tag,omitempty"`
	}{epochSeconds(start), epochSeconds(end), tag}
	if err := b.doJSON(ctx, "DELETE", "/memories/timeframe", body, &resp); err != nil {
		return 0, classifyWireError(err)
	}
	return resp.Count, nil
}

// Retrieve performs remote semantic retrieval.
func (b *Backend) Retrieve(ctx context.Context, queryText string, k int) ([]models.ScoredMemory, error) {
	return b.Recall(ctx, queryText, nil, nil, k)
}

// Recall performs remote semantic retrieval within an optional window.
func (b *Backend) Recall(ctx context.Context, queryText string, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	params := map[string]string{"q": queryText, "k": itoa(k)}
	if start != nil {
		params["start"] = itoa(int(epochSeconds(*start)))
	}
	if end != nil {
		params["end"] = itoa(int(epochSeconds(*end)))
	}
	var resp struct {
		Results []struct {
			Memory memoryWire `json:"memory"`
			Score  float32    `json:"score"`
		} `json:"results"`
	}
	if err := b.doJSON(ctx, "GET", "/search"+query(params), nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	out := make([]models.ScoredMemory, len(resp.Results))
	for i, r := range resp.Results {
		m := r.Memory.toModel()
		out[i] = models.ScoredMemory{Memory: &m, Score: r.Score}
	}
	return out, nil
}

// SearchByTag mirrors LVS.SearchByTag remotely.
func (b *Backend) SearchByTag(ctx context.Context, tags []string, mode store.TagMode) ([]models.Memory, error) {
	var resp struct {
		Results []memoryWire `json:"results"`
	}
	params := map[string]string{"mode": string(mode)}
	for i, t := range tags {
		params["tag"+itoa(i)] = t
	}
	if err := b.doJSON(ctx, "GET", "/memories"+query(params), nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	return wireToModels(resp.Results), nil
}

// ExactMatch mirrors LVS.ExactMatch remotely.
func (b *Backend) ExactMatch(ctx context.Context, substr string) ([]models.Memory, error) {
	var resp struct {
		Results []memoryWire `json:"results"`
	}
	if err := b.doJSON(ctx, "GET", "/memories"+query(map[string]string{"substring": substr}), nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	return wireToModels(resp.Results), nil
}

// GetByHash mirrors LVS.GetByHash remotely.
func (b *Backend) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	var resp memoryWire
	err := b.doJSON(ctx, "GET", "/memories/"+hash, nil, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyWireError(err)
	}
	m := resp.toModel()
	return &m, nil
}

// FindConnected mirrors LVS.FindConnected remotely.
func (b *Backend) FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]store.Connected, error) {
	params := map[string]string{"depth": itoa(depth), "direction": string(dir)}
	if relType != nil {
		params["rel_type"] = string(*relType)
	}
	var resp struct {
		Results []store.Connected `json:"results"`
	}
	if err := b.doJSON(ctx, "GET", "/graph/"+hash+query(params), nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	return resp.Results, nil
}

// ShortestPath mirrors LVS.ShortestPath remotely.
func (b *Backend) ShortestPath(ctx context.Context, a, c string, relType *models.RelationshipType) ([]string, error) {
	params := map[string]string{"from": a, "to": c}
	if relType != nil {
		params["rel_type"] = string(*relType)
	}
	var resp struct {
		Path []string `json:"path"`
	}
	if err := b.doJSON(ctx, "GET", "/graph/path"+query(params), nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	return resp.Path, nil
}

// GetSubgraph mirrors LVS.GetSubgraph remotely.
func (b *Backend) GetSubgraph(ctx context.Context, hash string, radius int) (store.Subgraph, error) {
	var resp struct {
		Nodes []memoryWire        `json:"nodes"`
		Edges []models.Association `json:"edges"`
	}
	if err := b.doJSON(ctx, "GET", "/graph/"+hash+"/subgraph"+query(map[string]string{"radius": itoa(radius)}), nil, &resp); err != nil {
		return store.Subgraph{}, classifyWireError(err)
	}
	return store.Subgraph{Nodes: wireToModels(resp.Nodes), Edges: resp.Edges}, nil
}

// HealthCheck goes through the same retry loop as every other call: each
// attempt is bounded by the configured request timeout, so a failing
// cloud can hold the call for several timeouts plus backoff.
func (b *Backend) HealthCheck(ctx context.Context) (models.HealthCheck, error) {
	var resp models.HealthCheck
	if err := b.doJSON(ctx, "GET", "/health", nil, &resp); err != nil {
		return models.HealthCheck{Backend: "cloud", Writable: false}, classifyWireError(err)
	}
	resp.Backend = "cloud"
	return resp, nil
}

// PurgeTombstones triggers the remote tombstone purge.
func (b *Backend) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	body := struct {
		OlderThanDays int `json:"older_than_days"`
	}{olderThanDays}
	if err := b.doJSON(ctx, "POST", "/admin/purge_tombstones", body, &resp); err != nil {
		return 0, classifyWireError(err)
	}
	return resp.Count, nil
}

// ListLive returns every live remote memory. It is not part of the
// generic store.Backend contract — only the hybrid backend's initial
// sync needs a full pull, and only the cloud transport can serve one.
func (b *Backend) ListLive(ctx context.Context) ([]models.Memory, error) {
	if err := b.ensureMigrated(ctx); err != nil {
		return nil, err
	}
	var resp struct {
		Memories []memoryWire `json:"memories"`
	}
	if err := b.doJSON(ctx, "GET", "/export", nil, &resp); err != nil {
		return nil, classifyWireError(err)
	}
	live := make([]memoryWire, 0, len(resp.Memories))
	for _, w := range resp.Memories {
		if w.DeletedAt == nil {
			live = append(live, w)
		}
	}
	return wireToModels(live), nil
}

func wireToModels(wire []memoryWire) []models.Memory {
	out := make([]models.Memory, len(wire))
	for i, w := range wire {
		out[i] = w.toModel()
	}
	return out
}

// classifyWireError maps a doJSON failure onto the storeerr taxonomy.
// retry.Do already exhausted the transient-retry budget by the time this
// runs, so anything still an error here is surfaced to the caller.
func classifyWireError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errNotFound) {
		return storeerr.NewNotFound("remote: %v", err)
	}
	var se *storeerr.Error
	if errors.As(err, &se) {
		return se
	}
	return storeerr.NewTransient(err)
}
