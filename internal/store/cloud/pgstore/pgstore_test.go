package pgstore

import (
	"testing"

	"github.com/cortexmemory/cortex/internal/store"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty vectors", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeEmbeddingRoundTrip(t *testing.T) {
	tests := [][]float32{
		nil,
		{},
		{0.5},
		{0.1, -0.2, 0.3},
	}
	for _, v := range tests {
		encoded := encodeEmbedding(v)
		decoded := decodeEmbedding(encoded)
		if len(v) == 0 {
			if len(decoded) != 0 {
				t.Errorf("decodeEmbedding(encodeEmbedding(%v)) = %v, want empty", v, decoded)
			}
			continue
		}
		if len(decoded) != len(v) {
			t.Fatalf("decodeEmbedding(encodeEmbedding(%v)) length = %d, want %d", v, len(decoded), len(v))
		}
		for i := range v {
			if decoded[i] != v[i] {
				t.Errorf("decodeEmbedding(encodeEmbedding(%v))[%d] = %v, want %v", v, i, decoded[i], v[i])
			}
		}
	}
}

func TestTagSetMatches(t *testing.T) {
	have := map[string]struct{}{"a": {}, "b": {}}

	if !tagSetMatches(have, []string{"b", "c"}, store.TagModeAny) {
		t.Errorf("TagModeAny: expected match on overlapping tag")
	}
	if tagSetMatches(have, []string{"c", "d"}, store.TagModeAny) {
		t.Errorf("TagModeAny: expected no match when no tag overlaps")
	}
	if !tagSetMatches(have, []string{"a", "b"}, store.TagModeAll) {
		t.Errorf("TagModeAll: expected match when every tag is present")
	}
	if tagSetMatches(have, []string{"a", "c"}, store.TagModeAll) {
		t.Errorf("TagModeAll: expected no match when one tag is missing")
	}
}

func TestTagsToSet(t *testing.T) {
	set := tagsToSet([]string{"Foo", " bar ", "foo"})
	if _, ok := set["foo"]; !ok {
		t.Errorf("expected normalized tag %q in set", "foo")
	}
	if _, ok := set["bar"]; !ok {
		t.Errorf("expected normalized tag %q in set", "bar")
	}
	if len(set) != 2 {
		t.Errorf("len(set) = %d, want 2 (duplicate normalized to one entry)", len(set))
	}
}
