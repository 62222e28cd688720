package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error for a missing API key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p := newProvider(t, Config{APIKey: "sk-test"})
	if p.model != "text-embedding-3-small" {
		t.Errorf("model = %q, want default", p.model)
	}
}

func TestNameIsOpenAI(t *testing.T) {
	p := newProvider(t, Config{APIKey: "sk-test"})
	if got := p.Name(); got != "openai" {
		t.Errorf("Name() = %q, want openai", got)
	}
}

func TestDimensionByModel(t *testing.T) {
	cases := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-large", 3072},
		{"text-embedding-3-small", 1536},
		{"text-embedding-ada-002", 1536},
		{"", 1536},
		{"some-unknown-model", 1536},
	}
	for _, c := range cases {
		p := newProvider(t, Config{APIKey: "sk-test", Model: c.model})
		if got := p.Dimension(); got != c.want {
			t.Errorf("Dimension() for model %q = %d, want %d", c.model, got, c.want)
		}
	}
}

func TestMaxBatchSizeIsTwoThousandFortyEight(t *testing.T) {
	p := newProvider(t, Config{APIKey: "sk-test"})
	if got := p.MaxBatchSize(); got != 2048 {
		t.Errorf("MaxBatchSize() = %d, want 2048", got)
	}
}

// embeddingsHandler returns a handler mimicking the OpenAI embeddings
// endpoint, echoing back one zero-vector per input text plus a constant
// offset per index, so ordering can be asserted on the response.
func embeddingsHandler(t *testing.T, dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i) + 1
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}
}

func TestEmbedReturnsSingleVector(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(t, 4))
	defer srv.Close()

	p := newProvider(t, Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	got, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 4 || got[0] != 1 {
		t.Errorf("embedding = %v, want [1 0 0 0]", got)
	}
}

func TestEmbedBatchPreservesInputOrderByIndex(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(t, 2))
	defer srv.Close()

	p := newProvider(t, Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	out, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for i, vec := range out {
		if vec[0] != float32(i)+1 {
			t.Errorf("out[%d][0] = %v, want %v", i, vec[0], float32(i)+1)
		}
	}
}

func TestEmbedBatchEmptyInputReturnsNil(t *testing.T) {
	p := newProvider(t, Config{APIKey: "sk-test"})
	out, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil for empty input", out)
	}
}

func TestEmbedBatchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	p := newProvider(t, Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	_, err := p.EmbedBatch(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected an error for a 401 response")
	}
	if !strings.Contains(err.Error(), "create embeddings") {
		t.Errorf("error = %v, want it wrapped with create embeddings context", err)
	}
}
