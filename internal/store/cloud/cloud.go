// Package cloud implements the Cloud Vector Store: an HTTP client that
// mirrors the LVS contract against a remote account/index, with
// token auth, retry/backoff and lazy schema migration.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/retry"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
)

func epochSeconds(t time.Time) float64 { return hashutil.SecondsSinceEpoch(t.UnixNano()) }

func fromEpochSeconds(f float64) time.Time { return time.Unix(0, int64(f*1e9)).UTC() }

// Config contains configuration for the cloud backend.
type Config struct {
	BaseURL        string // e.g. https://cortex.example.com/api/v1
	Token          string // bearer token, signed with jwt/v5 by the caller
	Dimension      int
	RequestTimeout time.Duration // default 10s
	Retry          retry.Config  // default retry.DefaultConfig()
	Logger         *slog.Logger
}

// Backend implements store.Backend against a remote HTTP API.
type Backend struct {
	baseURL   string
	token     string
	dimension int
	client    *http.Client
	retry     retry.Config
	log       *slog.Logger

	migrated bool // set once lazy schema migration has succeeded
}

var _ store.Backend = (*Backend)(nil)

// New creates a new cloud backend client. It does not perform network I/O
// until the first operation.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cloud: base URL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Backend{
		baseURL:   cfg.BaseURL,
		token:     cfg.Token,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		retry:     cfg.Retry,
		log:       cfg.Logger,
	}, nil
}

// Close is a no-op for the HTTP client; there is no persistent connection
// to release.
func (b *Backend) Close() error { return nil }

// doJSON performs one HTTP call with retry/backoff, classifying remote
// errors per the store contract: connect/timeout/5xx/429 are transient
// and retried; other 4xx surface immediately as permanent.
func (b *Backend) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("cloud: marshal request: %w", err)
		}
	}

	result := retry.Do(ctx, b.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if b.token != "" {
			req.Header.Set("Authorization", "Bearer "+b.token)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return err // network/timeout errors are retried
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if respBody != nil && len(body) > 0 {
				if err := json.Unmarshal(body, respBody); err != nil {
					return retry.Permanent(fmt.Errorf("cloud: decode response: %w", err))
				}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return fmt.Errorf("cloud: transient status %d: %s", resp.StatusCode, string(body))
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(errNotFound)
		default:
			return retry.Permanent(fmt.Errorf("cloud: status %d: %s", resp.StatusCode, string(body)))
		}
	})
	return result.Err
}

var errNotFound = fmt.Errorf("cloud: not found")

func query(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		if val != "" {
			v.Set(k, val)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func itoa(i int) string { return strconv.Itoa(i) }

// memoryWire is the over-the-wire shape for a memory, matching the LVS's
// persisted column set so CVS and LVS stay schema-compatible.
type memoryWire struct {
	ContentHash string                 `json:"content_hash"`
	Content     string                 `json:"content"`
	Tags        []string               `json:"tags"`
	MemoryType  string                 `json:"memory_type"`
	Metadata    models.MemoryMetadata  `json:"metadata"`
	Embedding   []float32              `json:"embedding,omitempty"`
	CreatedAt   float64                `json:"created_at"`
	UpdatedAt   float64                `json:"updated_at"`
	DeletedAt   *float64               `json:"deleted_at,omitempty"`
}

func toWire(m *models.Memory) memoryWire {
	w := memoryWire{
		ContentHash: m.ContentHash,
		Content:     m.Content,
		Tags:        m.Tags,
		MemoryType:  string(m.MemoryType),
		Metadata:    m.Metadata,
		Embedding:   m.Embedding,
		CreatedAt:   epochSeconds(m.CreatedAt),
		UpdatedAt:   epochSeconds(m.UpdatedAt),
	}
	if m.DeletedAt != nil {
		d := epochSeconds(*m.DeletedAt)
		w.DeletedAt = &d
	}
	return w
}

func (w memoryWire) toModel() models.Memory {
	m := models.Memory{
		ContentHash: w.ContentHash,
		Content:     w.Content,
		Tags:        w.Tags,
		MemoryType:  models.MemoryType(w.MemoryType),
		Metadata:    w.Metadata,
		Embedding:   w.Embedding,
		CreatedAt:   fromEpochSeconds(w.CreatedAt),
		UpdatedAt:   fromEpochSeconds(w.UpdatedAt),
	}
	if w.DeletedAt != nil {
		d := fromEpochSeconds(*w.DeletedAt)
		m.DeletedAt = &d
	}
	return m
}
