package consolidate

import (
	"math"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// baseRetentionDays maps memory type to its retention-class baseline.
// The spec's four retention constants (critical 365d, reference 180d,
// standard 30d, temporary 7d) are classes, not memory types; errors are
// treated as the "critical" class since learning from a mistake stays
// valuable longest, decisions/learnings/patterns as "reference"
// material, and observations as "standard". No memory type defaults to
// the 7-day "temporary" class; a tag can still push anything straight
// to maximum relevance via ProtectedTags, but nothing is born on a
// 7-day clock by type alone.
var baseRetentionDays = map[models.MemoryType]float64{
	models.MemoryTypeError:       365,
	models.MemoryTypeDecision:    180,
	models.MemoryTypeLearning:    180,
	models.MemoryTypePattern:     180,
	models.MemoryTypeObservation: 30,
}

// DecayScore computes a memory's current relevance:
//
//	relevance = base_retention(type) * exp(-age_days/tau(type)) * (1 + f(access_count) + g(connection_count))
//
// tau(type) reuses the same retention constant as base_retention: a
// memory's class sets both its starting weight and how fast it fades.
// A protected tag (critical/important/reference) short-circuits decay
// entirely, returning base_retention(type) as the memory's permanent
// floor score.
func DecayScore(m *models.Memory, connectionCount int, now time.Time) float64 {
	base := baseRetentionDays[m.MemoryType]
	if base == 0 {
		base = baseRetentionDays[models.MemoryTypeObservation]
	}
	if hasProtectedTag(m.Tags) {
		return base
	}

	ageDays := now.Sub(m.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-ageDays / base)
	boost := 1 + accessBoost(m.Metadata.AccessCount) + connectionBoost(connectionCount)
	return base * decay * boost
}

// accessBoost and connectionBoost are small monotonic log-boosts: each
// additional access or graph connection raises relevance, with
// diminishing returns, rather than a free-floating multiplier that
// could dominate the decay term.
func accessBoost(accessCount int) float64 {
	return math.Log(1+float64(accessCount)) / 10
}

func connectionBoost(connectionCount int) float64 {
	return math.Log(1+float64(connectionCount)) / 10
}

func hasProtectedTag(tags []string) bool {
	for _, t := range tags {
		for _, p := range ProtectedTags {
			if t == p {
				return true
			}
		}
	}
	return false
}
