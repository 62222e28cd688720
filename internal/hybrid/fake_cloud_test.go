package hybrid

import (
	"context"
	"sync"
	"time"

	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
)

// fakeCloud is an in-memory CloudBackend for exercising the hybrid
// backend's sync, drift and initial-sync paths without network I/O.
type fakeCloud struct {
	mu        sync.Mutex
	memories  map[string]models.Memory
	storeErr  error
	healthErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{memories: map[string]models.Memory{}}
}

var _ CloudBackend = (*fakeCloud)(nil)

func (f *fakeCloud) Store(ctx context.Context, m *models.Memory) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	if _, exists := f.memories[m.ContentHash]; exists {
		return "", storeerr.NewDuplicateExact(m.ContentHash)
	}
	f.memories[m.ContentHash] = *m
	return m.ContentHash, nil
}

func (f *fakeCloud) UpdateMetadata(ctx context.Context, hash string, delta store.MetadataDelta) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[hash]
	if !ok {
		return false, nil
	}
	if delta.Tags != nil {
		m.Tags = delta.Tags
	}
	f.memories[hash] = m
	return true, nil
}

func (f *fakeCloud) Delete(ctx context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memories[hash]; !ok {
		return false, nil
	}
	delete(f.memories, hash)
	return true, nil
}

func (f *fakeCloud) DeleteByTag(ctx context.Context, tag string) (int, error) { return 0, nil }
func (f *fakeCloud) DeleteByTags(ctx context.Context, tags []string, mode store.TagMode) (int, error) {
	return 0, nil
}
func (f *fakeCloud) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	return 0, nil
}
func (f *fakeCloud) Retrieve(ctx context.Context, q string, k int) ([]models.ScoredMemory, error) {
	return nil, nil
}
func (f *fakeCloud) SearchByTag(ctx context.Context, tags []string, mode store.TagMode) ([]models.Memory, error) {
	return nil, nil
}
func (f *fakeCloud) Recall(ctx context.Context, q string, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	return nil, nil
}
func (f *fakeCloud) ExactMatch(ctx context.Context, substr string) ([]models.Memory, error) {
	return nil, nil
}

func (f *fakeCloud) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[hash]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeCloud) FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]store.Connected, error) {
	return nil, nil
}
func (f *fakeCloud) ShortestPath(ctx context.Context, a, b string, relType *models.RelationshipType) ([]string, error) {
	return nil, nil
}
func (f *fakeCloud) GetSubgraph(ctx context.Context, hash string, radius int) (store.Subgraph, error) {
	return store.Subgraph{}, nil
}

func (f *fakeCloud) HealthCheck(ctx context.Context) (models.HealthCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return models.HealthCheck{Backend: "cloud", Writable: false}, f.healthErr
	}
	return models.HealthCheck{Backend: "cloud", Writable: true, Counts: map[string]int{"live": len(f.memories)}}, nil
}

func (f *fakeCloud) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) { return 0, nil }
func (f *fakeCloud) Close() error                                                        { return nil }

func (f *fakeCloud) ListLive(ctx context.Context) ([]models.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Memory, 0, len(f.memories))
	for _, m := range f.memories {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeCloud) put(m models.Memory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[m.ContentHash] = m
}

func (f *fakeCloud) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.memories)
}
