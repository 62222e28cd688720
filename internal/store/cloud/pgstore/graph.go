package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// CreateAssociation writes a graph edge between two live memories,
// mirroring the local backend's contract: symmetric relationship types
// get both directed rows, asymmetric types only (source, target).
func (b *Backend) CreateAssociation(ctx context.Context, a models.Association) error {
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return storeerr.NewValidation("marshal association metadata: %v", err)
	}
	now := toEpoch(time.Now().UTC())

	insert := func(src, dst string) error {
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO associations (source_hash, target_hash, relationship_type, similarity, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (source_hash, target_hash, relationship_type) DO UPDATE SET
				similarity = EXCLUDED.similarity, metadata = EXCLUDED.metadata, created_at = EXCLUDED.created_at`,
			src, dst, string(a.RelationshipType), a.Similarity, string(metaJSON), now)
		return err
	}

	if err := insert(a.SourceHash, a.TargetHash); err != nil {
		return storeerr.NewTransient(err)
	}
	if ontology.IsSymmetric(a.RelationshipType) {
		if err := insert(a.TargetHash, a.SourceHash); err != nil {
			return storeerr.NewTransient(err)
		}
	}
	return nil
}

type edgeRow struct {
	source, target, relType string
	similarity               float32
}

func (b *Backend) outgoingEdges(ctx context.Context, hash string, relType *models.RelationshipType) ([]edgeRow, error) {
	query := `SELECT source_hash, target_hash, relationship_type, similarity FROM associations WHERE source_hash = $1`
	args := []any{hash}
	if relType != nil {
		query += ` AND relationship_type = $2`
		args = append(args, string(*relType))
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []edgeRow
	for rows.Next() {
		var e edgeRow
		if err := rows.Scan(&e.source, &e.target, &e.relType, &e.similarity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) incomingEdges(ctx context.Context, hash string, relType *models.RelationshipType) ([]edgeRow, error) {
	query := `SELECT source_hash, target_hash, relationship_type, similarity FROM associations WHERE target_hash = $1`
	args := []any{hash}
	if relType != nil {
		query += ` AND relationship_type = $2`
		args = append(args, string(*relType))
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []edgeRow
	for rows.Next() {
		var e edgeRow
		if err := rows.Scan(&e.source, &e.target, &e.relType, &e.similarity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) neighbors(ctx context.Context, hash string, relType *models.RelationshipType, dir models.Direction) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(h string) {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	if dir == models.DirectionOut || dir == models.DirectionBoth {
		edges, err := b.outgoingEdges(ctx, hash, relType)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			add(e.target)
		}
	}
	if dir == models.DirectionIn || dir == models.DirectionBoth {
		edges, err := b.incomingEdges(ctx, hash, relType)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			add(e.source)
		}
	}
	return out, nil
}

// FindConnected returns every hash reachable from hash within depth hops,
// with its distance, skipping tombstoned endpoints and never revisiting a
// hash.
func (b *Backend) FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]store.Connected, error) {
	if depth <= 0 {
		depth = 1
	}
	visited := map[string]int{hash: 0}
	frontier := []string{hash}

	for d := 1; d <= depth; d++ {
		var next []string
		for _, h := range frontier {
			ns, err := b.neighbors(ctx, h, relType, dir)
			if err != nil {
				return nil, storeerr.NewTransient(err)
			}
			for _, n := range ns {
				if _, ok := visited[n]; ok {
					continue
				}
				live, err := b.GetByHash(ctx, n)
				if err != nil {
					return nil, err
				}
				if live == nil {
					continue
				}
				visited[n] = d
				next = append(next, n)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	var out []store.Connected
	for h, d := range visited {
		if h == hash {
			continue
		}
		out = append(out, store.Connected{Hash: h, Distance: d})
	}
	return out, nil
}

// ShortestPath returns the shortest relationship path from a to b via
// breadth-first search, or nil if none exists.
func (b *Backend) ShortestPath(ctx context.Context, a, b2 string, relType *models.RelationshipType) ([]string, error) {
	if a == b2 {
		return []string{a}, nil
	}
	visited := map[string]string{a: ""}
	queue := []string{a}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		ns, err := b.neighbors(ctx, cur, relType, models.DirectionOut)
		if err != nil {
			return nil, storeerr.NewTransient(err)
		}
		for _, n := range ns {
			if _, ok := visited[n]; ok {
				continue
			}
			live, err := b.GetByHash(ctx, n)
			if err != nil {
				return nil, err
			}
			if live == nil {
				continue
			}
			visited[n] = cur
			if n == b2 {
				return reconstructPath(visited, b2), nil
			}
			queue = append(queue, n)
		}
	}
	return nil, nil
}

func reconstructPath(visited map[string]string, target string) []string {
	var path []string
	for cur := target; cur != ""; cur = visited[cur] {
		path = append([]string{cur}, path...)
		if visited[cur] == "" {
			break
		}
	}
	return path
}

// GetSubgraph returns every node within radius hops of hash and the edges
// among them.
func (b *Backend) GetSubgraph(ctx context.Context, hash string, radius int) (store.Subgraph, error) {
	connected, err := b.FindConnected(ctx, hash, radius, nil, models.DirectionBoth)
	if err != nil {
		return store.Subgraph{}, err
	}

	nodeSet := map[string]struct{}{hash: {}}
	for _, c := range connected {
		nodeSet[c.Hash] = struct{}{}
	}

	var nodes []models.Memory
	for h := range nodeSet {
		m, err := b.GetByHash(ctx, h)
		if err != nil {
			return store.Subgraph{}, err
		}
		if m != nil {
			nodes = append(nodes, *m)
		}
	}

	var edges []models.Association
	for h := range nodeSet {
		rows, err := b.outgoingEdges(ctx, h, nil)
		if err != nil {
			return store.Subgraph{}, storeerr.NewTransient(err)
		}
		for _, e := range rows {
			if _, ok := nodeSet[e.target]; !ok {
				continue
			}
			edges = append(edges, models.Association{
				SourceHash:       e.source,
				TargetHash:       e.target,
				RelationshipType: models.RelationshipType(e.relType),
				Similarity:       e.similarity,
			})
		}
	}

	return store.Subgraph{Nodes: nodes, Edges: edges}, nil
}
