// Package hashfallback provides a dependency-free embedding provider used
// when no neural model (local or cloud) is reachable. It is deterministic
// and fast, at the cost of capturing only lexical overlap rather than
// semantic meaning — good enough to keep retrieval answering queries
// instead of failing outright.
package hashfallback

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/cortexmemory/cortex/internal/embeddings"
)

// Provider implements embeddings.Provider by hashing word shingles into a
// fixed-width bag-of-features vector, then L2-normalizing it so cosine
// similarity behaves the way it would for a learned embedding.
type Provider struct {
	dim int
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the hash-based provider.
type Config struct {
	Dimension int // default 256
}

// New creates a new hash-based embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 256
	}
	return &Provider{dim: cfg.Dimension}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "hash" }

// Dimension returns the embedding dimension.
func (p *Provider) Dimension() int { return p.dim }

// MaxBatchSize returns the maximum batch size; this provider has no
// network or model limits, so the cap just bounds per-call allocation.
func (p *Provider) MaxBatchSize() int { return 10000 }

// Embed generates a deterministic hashed bag-of-words vector for text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	return embed(text, p.dim), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embed(text, p.dim)
	}
	return out, nil
}

func embed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := int(h.Sum32()) % dim
		if bucket < 0 {
			bucket += dim
		}
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
