package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cortexmemory/cortex/internal/retry"
	"github.com/cortexmemory/cortex/pkg/models"
)

func testMemory(content string) *models.Memory {
	return &models.Memory{Content: content}
}

func schemaOKHandler(extra func(w http.ResponseWriter, r *http.Request) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/schema" {
			json.NewEncoder(w).Encode(map[string]any{"columns": requiredColumns})
			return
		}
		if extra != nil && extra(w, r) {
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestBackend(t *testing.T, handler http.Handler) (*Backend, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	b, err := New(Config{
		BaseURL:        srv.URL,
		Dimension:      32,
		RequestTimeout: 2 * time.Second,
		Retry:          retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, srv.Close
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error for a missing base URL")
	}
}

func TestNewDefaultsTimeoutAndRetry(t *testing.T) {
	b, err := New(Config{BaseURL: "http://example.invalid"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.client.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", b.client.Timeout)
	}
	if b.retry != retry.DefaultConfig() {
		t.Errorf("retry = %+v, want DefaultConfig()", b.retry)
	}
}

func TestStoreSendsBearerTokenAndDecodesHash(t *testing.T) {
	var gotAuth string
	handler := schemaOKHandler(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && r.URL.Path == "/memories" {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"content_hash": "abc123"})
			return true
		}
		return false
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	b, err := New(Config{BaseURL: srv.URL, Token: "secret-token"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hash, err := b.Store(context.Background(), testMemory("hello world"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if hash != "abc123" {
		t.Errorf("hash = %q, want abc123", hash)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization header = %q, want Bearer secret-token", gotAuth)
	}
}

func TestStoreSurfacesDuplicateExact(t *testing.T) {
	handler := schemaOKHandler(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && r.URL.Path == "/memories" {
			json.NewEncoder(w).Encode(map[string]any{"content_hash": "dup-hash", "error_kind": "duplicate_exact"})
			return true
		}
		return false
	})
	b, closeFn := newTestBackend(t, handler)
	defer closeFn()

	_, err := b.Store(context.Background(), testMemory("duplicate content"))
	if err == nil {
		t.Fatal("expected a duplicate error")
	}
}

func TestGetByHashReturnsNilOnNotFound(t *testing.T) {
	handler := schemaOKHandler(func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusNotFound)
		return true
	})
	b, closeFn := newTestBackend(t, handler)
	defer closeFn()

	m, err := b.GetByHash(context.Background(), "missing-hash")
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if m != nil {
		t.Errorf("m = %+v, want nil", m)
	}
}

func TestDoJSONRetriesTransientStatusThenSucceeds(t *testing.T) {
	attempts := 0
	handler := schemaOKHandler(func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/health" {
			attempts++
			if attempts < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return true
			}
			json.NewEncoder(w).Encode(map[string]any{"writable": true, "counts": map[string]int{}})
			return true
		}
		return false
	})
	b, closeFn := newTestBackend(t, handler)
	defer closeFn()

	hc, err := b.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if !hc.Writable {
		t.Error("expected Writable = true after the transient retry recovered")
	}
	if attempts < 2 {
		t.Errorf("attempts = %d, want at least 2 (one failure then a retry)", attempts)
	}
}

func TestEnsureMigratedTriggersMigrationWhenColumnsMissing(t *testing.T) {
	schemaChecked := false
	migrateCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/schema":
			schemaChecked = true
			json.NewEncoder(w).Encode(map[string]any{"columns": []string{}})
		case "/admin/schema/migrate":
			migrateCalled = true
			json.NewEncoder(w).Encode(map[string]any{"migrated": true})
		case "/memories":
			json.NewEncoder(w).Encode(map[string]any{"content_hash": "h1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	b, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := b.Store(context.Background(), testMemory("triggers migration")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !schemaChecked || !migrateCalled {
		t.Errorf("schemaChecked=%v migrateCalled=%v, want both true", schemaChecked, migrateCalled)
	}
	if !b.migrated {
		t.Error("expected migrated = true after a successful migration")
	}
}

func TestHasRequiredColumns(t *testing.T) {
	if hasRequiredColumns([]string{"deleted_at"}) {
		t.Error("expected false when some required columns are missing")
	}
	if !hasRequiredColumns(requiredColumns) {
		t.Error("expected true when all required columns are present")
	}
}
