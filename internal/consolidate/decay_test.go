package consolidate

import (
	"math"
	"testing"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

func TestDecayScoreProtectedTagReturnsBaseRegardlessOfAge(t *testing.T) {
	now := time.Now()
	m := &models.Memory{
		MemoryType: models.MemoryTypeObservation,
		Tags:       []string{"critical"},
		CreatedAt:  now.Add(-10 * 365 * 24 * time.Hour),
	}
	got := DecayScore(m, 0, now)
	want := baseRetentionDays[models.MemoryTypeObservation]
	if got != want {
		t.Errorf("DecayScore() = %v, want %v (protected floor)", got, want)
	}
}

func TestDecayScoreUnknownTypeFallsBackToObservationBaseline(t *testing.T) {
	now := time.Now()
	m := &models.Memory{MemoryType: "nonexistent-type", CreatedAt: now}
	got := DecayScore(m, 0, now)
	want := baseRetentionDays[models.MemoryTypeObservation]
	if got != want {
		t.Errorf("DecayScore() at age 0 = %v, want %v", got, want)
	}
}

func TestDecayScoreNegativeAgeClampsToZero(t *testing.T) {
	now := time.Now()
	m := &models.Memory{MemoryType: models.MemoryTypeObservation, CreatedAt: now.Add(time.Hour)}
	got := DecayScore(m, 0, now)
	want := baseRetentionDays[models.MemoryTypeObservation]
	if got != want {
		t.Errorf("DecayScore() with a future CreatedAt = %v, want %v (age clamped to 0)", got, want)
	}
}

func TestDecayScoreDecreasesWithAge(t *testing.T) {
	now := time.Now()
	fresh := &models.Memory{MemoryType: models.MemoryTypeObservation, CreatedAt: now}
	old := &models.Memory{MemoryType: models.MemoryTypeObservation, CreatedAt: now.Add(-60 * 24 * time.Hour)}

	freshScore := DecayScore(fresh, 0, now)
	oldScore := DecayScore(old, 0, now)
	if oldScore >= freshScore {
		t.Errorf("oldScore = %v, freshScore = %v, want old < fresh", oldScore, freshScore)
	}
}

func TestDecayScoreAccessAndConnectionBoostRaiseRelevance(t *testing.T) {
	now := time.Now()
	m := &models.Memory{
		MemoryType: models.MemoryTypeObservation,
		CreatedAt:  now.Add(-10 * 24 * time.Hour),
		Metadata:   models.MemoryMetadata{AccessCount: 50},
	}
	boosted := DecayScore(m, 10, now)
	plain := DecayScore(&models.Memory{MemoryType: models.MemoryTypeObservation, CreatedAt: m.CreatedAt}, 0, now)
	if boosted <= plain {
		t.Errorf("boosted = %v, plain = %v, want boosted > plain", boosted, plain)
	}
}

func TestAccessBoostIsMonotonicWithDiminishingReturns(t *testing.T) {
	b0 := accessBoost(0)
	b1 := accessBoost(1)
	b100 := accessBoost(100)
	if !(b0 < b1 && b1 < b100) {
		t.Fatalf("accessBoost not monotonic: b0=%v b1=%v b100=%v", b0, b1, b100)
	}
	if b100-b1 >= b1-b0 {
		t.Errorf("expected diminishing returns, got delta(1,100)=%v >= delta(0,1)=%v", b100-b1, b1-b0)
	}
}

func TestConnectionBoostZeroConnectionsIsZero(t *testing.T) {
	if got := connectionBoost(0); got != 0 {
		t.Errorf("connectionBoost(0) = %v, want 0", got)
	}
}

func TestHasProtectedTag(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{"empty", nil, false},
		{"no match", []string{"random", "misc"}, false},
		{"critical", []string{"critical"}, true},
		{"important mixed in", []string{"misc", "important"}, true},
		{"reference", []string{"reference"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasProtectedTag(tc.tags); got != tc.want {
				t.Errorf("hasProtectedTag(%v) = %v, want %v", tc.tags, got, tc.want)
			}
		})
	}
}

func TestDecayScoreIsFinite(t *testing.T) {
	now := time.Now()
	m := &models.Memory{MemoryType: models.MemoryTypeError, CreatedAt: now.Add(-1000 * 24 * time.Hour)}
	got := DecayScore(m, 1000, now)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("DecayScore() = %v, want a finite number", got)
	}
}
