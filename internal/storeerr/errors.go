// Package storeerr defines the error taxonomy shared by every storage
// backend: callers distinguish failure kinds with errors.As, never by
// matching error strings.
package storeerr

import "fmt"

// Kind classifies a storage error so callers can branch on outcome
// without parsing messages.
type Kind string

const (
	KindDuplicateExact     Kind = "duplicate_exact"
	KindDuplicateSemantic  Kind = "duplicate_semantic"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindPreconditionFailed Kind = "precondition_failed"
	KindTransientBackend   Kind = "transient_backend"
	KindSchema             Kind = "schema"
	KindFatalConfig        Kind = "fatal_config"
)

// Error is a structured storage error carrying a Kind plus, for
// duplicate-semantic failures, the hash of the colliding memory.
type Error struct {
	Kind         Kind
	Message      string
	ExistingHash string // set only for KindDuplicateSemantic
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, storeerr.DuplicateExact) style checks against
// the zero-value sentinels below (they compare by Kind only).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons; construct with New* helpers
// for errors that carry real context.
var (
	DuplicateExact   = &Error{Kind: KindDuplicateExact}
	NotFound         = &Error{Kind: KindNotFound}
	TransientBackend = &Error{Kind: KindTransientBackend}
	Schema           = &Error{Kind: KindSchema}
)

// NewDuplicateExact builds a DuplicateExact error for the given hash.
func NewDuplicateExact(hash string) *Error {
	return &Error{Kind: KindDuplicateExact, Message: fmt.Sprintf("content hash %s already exists", hash)}
}

// NewDuplicateSemantic builds a DuplicateSemantic error carrying the
// colliding hash, required by the store contract so callers can surface
// it to the caller.
func NewDuplicateSemantic(existingHash string, similarity float32) *Error {
	return &Error{
		Kind:         KindDuplicateSemantic,
		Message:      fmt.Sprintf("semantic duplicate of %s (similarity %.3f)", existingHash, similarity),
		ExistingHash: existingHash,
	}
}

// NewValidation builds a ValidationError.
func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewPreconditionFailed builds an error for a caller-supplied precondition
// (such as a bulk-delete confirm_count) that no longer matches server
// state. Distinct from KindValidation because the request is well-formed
// and only failed a freshness check, not input parsing.
func NewPreconditionFailed(format string, args ...any) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound builds a NotFound error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewTransient wraps a retryable backend error (network, timeout, busy,
// 5xx, 429).
func NewTransient(err error) *Error {
	return &Error{Kind: KindTransientBackend, Message: "transient backend error", Err: err}
}

// NewSchema wraps a schema-mismatch error, local or remote.
func NewSchema(err error) *Error {
	return &Error{Kind: KindSchema, Message: "schema error", Err: err}
}

// NewFatalConfig builds a FatalConfigError, raised at startup only.
func NewFatalConfig(format string, args ...any) *Error {
	return &Error{Kind: KindFatalConfig, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
