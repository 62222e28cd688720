package api

import (
	"context"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// fakeStore is a minimal in-memory store.Backend used to exercise the
// HTTP layer without a real database.
type fakeStore struct {
	memories map[string]*models.Memory
}

var _ store.Backend = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{memories: map[string]*models.Memory{}}
}

func (f *fakeStore) Store(ctx context.Context, m *models.Memory) (string, error) {
	if m.Content == "" {
		return "", storeerr.NewValidation("content must not be empty")
	}
	hash := hashutil.ContentHash(m.Content)
	if existing, ok := f.memories[hash]; ok && existing.DeletedAt == nil {
		return "", storeerr.NewDuplicateExact(hash)
	}
	now := time.Now().UTC()
	m.ContentHash = hash
	m.CreatedAt = now
	m.UpdatedAt = now
	m.DeletedAt = nil
	f.memories[hash] = m
	return hash, nil
}

func (f *fakeStore) UpdateMetadata(ctx context.Context, hash string, delta store.MetadataDelta) (bool, error) {
	m, ok := f.memories[hash]
	if !ok || m.DeletedAt != nil {
		return false, nil
	}
	if delta.Tags != nil {
		m.Tags = delta.Tags
	}
	if delta.Metadata != nil {
		fakeMergeExtra(&m.Metadata, delta.Metadata)
	}
	m.UpdatedAt = time.Now().UTC()
	return true, nil
}

// fakeMergeExtra mirrors the typed-field handling in the real backends'
// mergeExtra, just enough for tests to assert on the quality/access
// fields a search response updates post-retrieval.
func fakeMergeExtra(meta *models.MemoryMetadata, patch map[string]any) {
	for k, v := range patch {
		switch k {
		case "quality_score":
			if f, ok := v.(float64); ok {
				meta.QualityScore = &f
			}
		case "access_count":
			switch n := v.(type) {
			case int:
				meta.AccessCount = n
			case float64:
				meta.AccessCount = int(n)
			}
		case "last_accessed_at":
			if f, ok := v.(float64); ok {
				meta.LastAccessedAt = &f
			}
		}
	}
}

func (f *fakeStore) Delete(ctx context.Context, hash string) (bool, error) {
	m, ok := f.memories[hash]
	if !ok || m.DeletedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	m.DeletedAt = &now
	return true, nil
}

func (f *fakeStore) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return f.DeleteByTags(ctx, []string{tag}, store.TagModeAny)
}

func (f *fakeStore) DeleteByTags(ctx context.Context, tags []string, mode store.TagMode) (int, error) {
	matched, _ := f.SearchByTag(ctx, tags, mode)
	for _, m := range matched {
		now := time.Now().UTC()
		f.memories[m.ContentHash].DeletedAt = &now
	}
	return len(matched), nil
}

func (f *fakeStore) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	count := 0
	for _, m := range f.memories {
		if m.DeletedAt != nil || m.CreatedAt.Before(start) || m.CreatedAt.After(end) {
			continue
		}
		if tag != "" && !containsTag(m.Tags, tag) {
			continue
		}
		now := time.Now().UTC()
		m.DeletedAt = &now
		count++
	}
	return count, nil
}

func (f *fakeStore) Retrieve(ctx context.Context, queryText string, k int) ([]models.ScoredMemory, error) {
	var out []models.ScoredMemory
	for _, m := range f.memories {
		if m.DeletedAt != nil {
			continue
		}
		out = append(out, models.ScoredMemory{Memory: m, Score: 1})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SearchByTag(ctx context.Context, tags []string, mode store.TagMode) ([]models.Memory, error) {
	want := hashutil.NormalizeTags(tags)
	var out []models.Memory
	for _, m := range f.memories {
		if m.DeletedAt != nil {
			continue
		}
		have := map[string]struct{}{}
		for _, t := range hashutil.NormalizeTags(m.Tags) {
			have[t] = struct{}{}
		}
		if tagSetMatches(have, want, mode) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) Recall(ctx context.Context, queryText string, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	return f.Retrieve(ctx, queryText, k)
}

func (f *fakeStore) ExactMatch(ctx context.Context, substr string) ([]models.Memory, error) {
	var out []models.Memory
	for _, m := range f.memories {
		if m.DeletedAt != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	m, ok := f.memories[hash]
	if !ok || m.DeletedAt != nil {
		return nil, nil
	}
	return m, nil
}

func (f *fakeStore) FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]store.Connected, error) {
	return nil, nil
}

func (f *fakeStore) ShortestPath(ctx context.Context, a, b string, relType *models.RelationshipType) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) GetSubgraph(ctx context.Context, hash string, radius int) (store.Subgraph, error) {
	return store.Subgraph{}, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) (models.HealthCheck, error) {
	return models.HealthCheck{Backend: "fake", Writable: true, Counts: map[string]int{"live": len(f.memories)}}, nil
}

func (f *fakeStore) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) {
	return 0, nil
}

func (f *fakeStore) Close() error { return nil }

// ExportAll satisfies the api.exporter capability for export/import tests.
func (f *fakeStore) ExportAll(ctx context.Context) ([]models.Memory, error) {
	var out []models.Memory
	for _, m := range f.memories {
		out = append(out, *m)
	}
	return out, nil
}
