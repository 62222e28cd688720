// Package store defines the storage capability set shared by the local,
// cloud and hybrid backends, so callers never depend on a concrete
// implementation.
package store

import (
	"context"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// TagMode selects how a tag-set query matches multiple tags.
type TagMode string

const (
	TagModeAny TagMode = "any"
	TagModeAll TagMode = "all"
)

// Backend is the single capability set implemented by the local vector
// store, the cloud vector store, and the hybrid backend that composes
// them. Every method is synchronous at the contract level; an
// implementation may suspend internally to await I/O.
type Backend interface {
	// Store inserts a memory, returning its content hash. Exact-hash
	// duplicates fail with storeerr.DuplicateExact; semantic duplicates
	// (when enabled) fail with storeerr.DuplicateSemantic carrying the
	// colliding hash. The exact check always takes precedence.
	Store(ctx context.Context, memory *models.Memory) (string, error)

	// UpdateMetadata applies a partial metadata patch and optional tag
	// replacement to a live memory.
	UpdateMetadata(ctx context.Context, hash string, delta MetadataDelta) (bool, error)

	// Delete soft-deletes a single memory by hash. A missing hash
	// returns (false, nil), never an error.
	Delete(ctx context.Context, hash string) (bool, error)

	// DeleteByTag soft-deletes every live memory bearing the tag,
	// returning the count removed.
	DeleteByTag(ctx context.Context, tag string) (int, error)

	// DeleteByTags soft-deletes every live memory matching the tag set
	// under the given mode, returning the count removed.
	DeleteByTags(ctx context.Context, tags []string, mode TagMode) (int, error)

	// DeleteByTimeframe soft-deletes live memories created within
	// [start, end], optionally restricted to a tag, returning the count
	// removed.
	DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error)

	// Retrieve performs semantic retrieval: embeds queryText and returns
	// the top-k live memories by descending cosine similarity.
	Retrieve(ctx context.Context, queryText string, k int) ([]models.ScoredMemory, error)

	// SearchByTag returns live memories matching the tag set under mode,
	// ordered by created_at descending.
	SearchByTag(ctx context.Context, tags []string, mode TagMode) ([]models.Memory, error)

	// Recall performs semantic retrieval restricted to an optional time
	// window.
	Recall(ctx context.Context, queryText string, start, end *time.Time, k int) ([]models.ScoredMemory, error)

	// ExactMatch returns live memories whose content contains substr,
	// case-insensitively, ordered by created_at descending.
	ExactMatch(ctx context.Context, substr string) ([]models.Memory, error)

	// GetByHash returns a live memory by hash, or (nil, nil) if absent
	// or tombstoned.
	GetByHash(ctx context.Context, hash string) (*models.Memory, error)

	// FindConnected returns every hash reachable from hash within depth
	// hops, along with its distance, optionally restricted to a
	// relationship type and direction.
	FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]Connected, error)

	// ShortestPath returns the shortest relationship path from a to b,
	// or nil if none exists within the search bound.
	ShortestPath(ctx context.Context, a, b string, relType *models.RelationshipType) ([]string, error)

	// GetSubgraph returns every node within radius hops of hash and the
	// edges among them.
	GetSubgraph(ctx context.Context, hash string, radius int) (Subgraph, error)

	// HealthCheck reports backend status without mutating state.
	HealthCheck(ctx context.Context) (models.HealthCheck, error)

	// PurgeTombstones permanently removes tombstones older than
	// olderThanDays, returning the count purged.
	PurgeTombstones(ctx context.Context, olderThanDays int) (int, error)

	// Close releases backend resources.
	Close() error
}

// MetadataDelta is a partial update applied by UpdateMetadata. Tags, when
// non-nil, replace the memory's tag set entirely (already normalized by
// the caller via hashutil.NormalizeTags).
type MetadataDelta struct {
	Tags     []string
	Metadata map[string]any
}

// Connected is one result row of FindConnected: a reachable hash and its
// hop distance from the query hash.
type Connected struct {
	Hash     string
	Distance int
}

// Subgraph is the result of GetSubgraph: every node within radius hops
// plus the edges connecting them.
type Subgraph struct {
	Nodes []models.Memory
	Edges []models.Association
}

// Config contains configuration shared by every backend implementation.
type Config struct {
	// Dimension is the embedding dimension this store was opened with.
	// Opening an existing store with a mismatched dimension is a
	// FatalConfigError.
	Dimension int
}
