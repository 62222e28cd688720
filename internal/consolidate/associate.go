package consolidate

import (
	"context"
	"math"
	"math/rand"

	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/pkg/models"
)

// AssociationResult is one creative-association pairing discovered
// among the selected memories.
type AssociationResult struct {
	A, B       string
	Similarity float32
	Classified models.RelationshipType
	HasClass   bool
}

// DiscoverAssociations randomly samples pairs from selected and keeps
// those whose embedding cosine similarity falls in [floor, ceil] — the
// "sweet spot" where a pair is neither an obvious duplicate (too
// similar) nor unrelated noise (too dissimilar). Sampling is capped at
// 10x cap attempts so a small or sparse selection doesn't spin forever
// looking for pairs that don't exist.
func DiscoverAssociations(selected []models.Memory, floor, ceil float32, cap int, rng *rand.Rand) []AssociationResult {
	n := len(selected)
	if n < 2 || cap <= 0 {
		return nil
	}

	var out []AssociationResult
	seen := make(map[[2]int]struct{})
	attempts := cap * 10
	for tries := 0; tries < attempts && len(out) < cap; tries++ {
		i, j := rng.Intn(n), rng.Intn(n)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		key := [2]int{i, j}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		sim := cosineSimilarity(selected[i].Embedding, selected[j].Embedding)
		if sim < floor || sim > ceil {
			continue
		}

		res := AssociationResult{A: selected[i].ContentHash, B: selected[j].ContentHash, Similarity: sim}
		if rel, ok := ontology.ClassifyRelationship(selected[i].Content + " " + selected[j].Content); ok {
			res.Classified = rel
			res.HasClass = true
		}
		out = append(out, res)
	}
	return out
}

// ApplyAssociations writes each discovered pairing as a symmetric
// "related" edge and, when a causal marker classified it, an
// additional typed edge.
func ApplyAssociations(ctx context.Context, s Store, results []AssociationResult) (int, error) {
	count := 0
	for _, r := range results {
		if err := s.CreateAssociation(ctx, models.Association{
			SourceHash: r.A, TargetHash: r.B,
			RelationshipType: models.RelRelated, Similarity: r.Similarity,
		}); err != nil {
			return count, err
		}
		count++

		if r.HasClass {
			if err := s.CreateAssociation(ctx, models.Association{
				SourceHash: r.A, TargetHash: r.B,
				RelationshipType: r.Classified, Similarity: r.Similarity,
			}); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
