// Package quality implements the composite memory quality score: a
// blend of a model-based relevance estimate and a purely local implicit
// signal derived from access patterns, with a fallback chain so a
// missing model or missing embeddings never blocks retrieval.
package quality

import (
	"math"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// AIScoreRingLen is the maximum length of metadata.ai_scores.
const AIScoreRingLen = 10

// Scorer computes quality scores per the composite formula, weighting
// the model score against the implicit score.
type Scorer struct {
	// Weight is w in composite = (1-w)*model + w*implicit.
	Weight float64
	// Model scores (query, memory) -> [0,1]; nil disables the model term
	// and the scorer falls back to implicit-only.
	Model func(query, content string) (float64, bool)
}

// NewScorer builds a Scorer with the given implicit/model blend weight.
// A zero or out-of-range weight falls back to 0.3, the corpus's typical
// implicit-leaning default for a scorer with a trustworthy model term.
func NewScorer(weight float64, model func(query, content string) (float64, bool)) *Scorer {
	if weight <= 0 || weight > 1 {
		weight = 0.3
	}
	return &Scorer{Weight: weight, Model: model}
}

// Score computes the composite score for memory against query, given
// now and the total corpus size N (used to normalize frequency).
// modelAvailable is false when the caller has no embeddings or model
// weights loaded for this query, e.g. a hash-fallback-only deployment.
func (s *Scorer) Score(query string, m *models.Memory, resultPosition, n int, now time.Time, modelAvailable bool) float64 {
	implicit := ImplicitScore(m, resultPosition, n, now)

	if s.Model == nil || !modelAvailable {
		return implicit
	}
	model, ok := s.Model(query, m.Content)
	if !ok {
		return implicit
	}
	return (1-s.Weight)*model + s.Weight*implicit
}

// ImplicitScore computes 0.4*frequency + 0.3*recency + 0.3*ranking from
// a memory's own access history, independent of any model.
//
//   - frequency = log(1+access_count) / log(1+n)
//   - recency   = exp(-age_days/30)
//   - ranking   = inverse of this retrieval's result position, clamped to
//     [0,1]; positions from earlier retrievals are not kept or averaged
func ImplicitScore(m *models.Memory, resultPosition, n int, now time.Time) float64 {
	frequency := frequencyScore(m.Metadata.AccessCount, n)
	recency := recencyScore(m.UpdatedAt, now)
	ranking := rankingScore(resultPosition)
	return 0.4*frequency + 0.3*recency + 0.3*ranking
}

func frequencyScore(accessCount, n int) float64 {
	if n <= 0 {
		n = 1
	}
	return math.Log(1+float64(accessCount)) / math.Log(1+float64(n))
}

func recencyScore(updatedAt, now time.Time) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 30)
}

// rankingScore inverts a 1-based result position into [0,1]; position 1
// (best) scores 1.0, worsening positions asymptotically approach 0.
func rankingScore(position int) float64 {
	if position <= 0 {
		return 0
	}
	v := 1.0 / float64(position)
	if v > 1 {
		v = 1
	}
	return v
}

// AppendAIScore pushes score onto the ai_scores ring buffer, keeping at
// most AIScoreRingLen entries (oldest dropped first).
func AppendAIScore(m *models.Memory, score float64) {
	scores := append(m.Metadata.AIScores, score)
	if len(scores) > AIScoreRingLen {
		scores = scores[len(scores)-AIScoreRingLen:]
	}
	m.Metadata.AIScores = scores
	m.Metadata.QualityScore = &score
}
