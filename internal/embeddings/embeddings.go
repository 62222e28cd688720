// Package embeddings provides the deterministic text-to-vector interface
// the rest of the store is built against.
package embeddings

import "context"

// Provider maps text to a fixed-length float vector. Implementations must
// be deterministic for a given model: the same text always yields the
// same vector.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider identifier (e.g. "openai", "ollama", "hash").
	Name() string

	// Dimension returns the embedding length this provider produces.
	Dimension() int

	// MaxBatchSize returns the largest batch EmbedBatch accepts at once.
	MaxBatchSize() int
}

// Config is the common configuration surface for selecting and
// constructing a provider; backend-specific fields are ignored by
// providers that don't need them.
type Config struct {
	Provider string `yaml:"provider"` // openai, ollama, hash
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	OllamaURL string `yaml:"ollama_url"`
}
