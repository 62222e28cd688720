package api

import (
	"net/http"
	"testing"

	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

func TestTruncateKeepsAtLeastOneMemory(t *testing.T) {
	results := []models.ResultEnvelope{
		{Content: "this is a long memory that alone exceeds the budget"},
		{Content: "second"},
	}
	resp := truncate(results, 5)
	if len(resp.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(resp.Results))
	}
	if resp.Truncation == nil || resp.Truncation.Shown != 1 || resp.Truncation.Total != 2 {
		t.Fatalf("Truncation = %+v, want {Shown:1 Total:2}", resp.Truncation)
	}
}

func TestTruncateNoLimitReturnsEverything(t *testing.T) {
	results := []models.ResultEnvelope{{Content: "a"}, {Content: "b"}}
	resp := truncate(results, 0)
	if len(resp.Results) != 2 || resp.Truncation != nil {
		t.Fatalf("expected all results with no truncation, got %+v", resp)
	}
}

func TestTruncateWholeMemoryBoundary(t *testing.T) {
	results := []models.ResultEnvelope{
		{Content: "12345"},
		{Content: "12345"},
		{Content: "12345"},
	}
	resp := truncate(results, 12)
	if len(resp.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2 (whole memories only, never split)", len(resp.Results))
	}
	if resp.Truncation.Shown != 2 || resp.Truncation.Total != 3 {
		t.Fatalf("Truncation = %+v, want {Shown:2 Total:3}", resp.Truncation)
	}
}

func TestClassifyErrorMapsStoreerrKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", storeerr.NewValidation("bad"), http.StatusBadRequest},
		{"not found", storeerr.NewNotFound("missing"), http.StatusNotFound},
		{"duplicate exact", storeerr.NewDuplicateExact("h1"), http.StatusConflict},
		{"duplicate semantic", storeerr.NewDuplicateSemantic("h1", 0.9), http.StatusConflict},
		{"transient", storeerr.NewTransient(errPlaceholder{}), http.StatusServiceUnavailable},
		{"fatal config", storeerr.NewFatalConfig("bad config"), http.StatusInternalServerError},
		{"unknown error type", errPlaceholder{}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classifyError(tt.err)
			if status != tt.want {
				t.Errorf("classifyError(%v) status = %d, want %d", tt.err, status, tt.want)
			}
		})
	}
}

type errPlaceholder struct{}

func (errPlaceholder) Error() string { return "placeholder" }

func TestJWTGenerateAndValidateRoundTrip(t *testing.T) {
	svc := newJWTService("a-sufficiently-long-signing-secret", 0)
	token, err := svc.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	subject, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if subject != "client-1" {
		t.Errorf("subject = %q, want %q", subject, "client-1")
	}
}

func TestJWTValidateRejectsTamperedToken(t *testing.T) {
	svc := newJWTService("a-sufficiently-long-signing-secret", 0)
	token, err := svc.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := svc.Validate(token + "x"); err != ErrInvalidToken {
		t.Errorf("Validate(tampered) error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTDisabledWithoutSecret(t *testing.T) {
	svc := newJWTService("", 0)
	if svc.enabled() {
		t.Fatalf("expected jwt service to be disabled with empty secret")
	}
	if _, err := svc.Generate("x"); err != ErrAuthDisabled {
		t.Errorf("Generate() error = %v, want ErrAuthDisabled", err)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitCSV()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseTagMode(t *testing.T) {
	if parseTagMode("all") != store.TagModeAll {
		t.Errorf("parseTagMode(all) did not return TagModeAll")
	}
	if parseTagMode("bogus") != store.TagModeAny {
		t.Errorf("parseTagMode(bogus) did not default to TagModeAny")
	}
}
