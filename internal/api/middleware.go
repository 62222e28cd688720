package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	subjectContextKey   contextKey = "api-subject"
	requestIDContextKey contextKey = "api-request-id"
)

// withSubject stashes the authenticated token subject on ctx.
func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// Subject returns the authenticated caller's token subject, or "" if the
// request was served unauthenticated (auth disabled).
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectContextKey).(string)
	return s
}

// RequestID returns the request-scoped correlation ID assigned by
// instrument, or "" outside of a request.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDContextKey).(string)
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authMiddleware requires a valid "Authorization: Bearer <token>" header
// when jwtSvc has a configured secret; it is a no-op passthrough when
// auth is disabled, matching the engine's single-process deployment
// model where a missing secret means "trust the local caller".
func authMiddleware(jwtSvc *jwtService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !jwtSvc.enabled() {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, log, http.StatusUnauthorized, errorBody{Error: ErrInvalidToken.Error()})
				return
			}

			subject, err := jwtSvc.Validate(token)
			if err != nil {
				writeJSON(w, log, http.StatusUnauthorized, errorBody{Error: ErrInvalidToken.Error()})
				return
			}

			r = r.WithContext(withSubject(r.Context(), subject))
			next.ServeHTTP(w, r)
		})
	}
}

// instrument wraps handler with request logging and Prometheus
// observations, labeling both by route (the registered pattern, not the
// raw path, to keep label cardinality bounded).
func instrument(route string, metrics *Metrics, log *slog.Logger, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, reqID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(rec, r)

		duration := time.Since(start)
		metrics.recordHTTP(route, r.Method, strconv.Itoa(rec.status), duration.Seconds())
		log.Info("api request",
			"route", route,
			"method", r.Method,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"request_id", reqID,
		)
	}
}
