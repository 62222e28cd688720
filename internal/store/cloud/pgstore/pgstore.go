// Package pgstore implements an alternate Cloud Vector Store transport: a
// direct PostgreSQL connection instead of the HTTP client in
// internal/store/cloud. It stores embeddings in a plain FLOAT8[] column
// and computes cosine similarity in Go, rather than depending on the
// pgvector extension, so it runs against any stock PostgreSQL instance.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cortexmemory/cortex/internal/embeddings"
	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
	"github.com/lib/pq"
)

// Config contains configuration for the direct-Postgres backend.
type Config struct {
	DSN       string // postgres connection string; ignored if DB is set
	DB        *sql.DB
	Dimension int
	Embedder  embeddings.Provider // required for Retrieve/Recall
	Logger    *slog.Logger
}

// Backend implements store.Backend against a PostgreSQL database.
type Backend struct {
	db        *sql.DB
	ownsDB    bool
	dimension int
	embedder  embeddings.Provider
	log       *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New opens (and migrates) a direct-Postgres backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db := cfg.DB
	ownsDB := false
	if db == nil {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("pgstore: either DSN or DB must be provided")
		}
		var err error
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgstore: open database: %w", err)
		}
		ownsDB = true
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("pgstore: ping database: %w", err)
		}
	}

	b := &Backend{db: db, ownsDB: ownsDB, dimension: cfg.Dimension, embedder: cfg.Embedder, log: cfg.Logger}
	if err := b.migrate(ctx); err != nil {
		if ownsDB {
			db.Close()
		}
		return nil, err
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			content_hash TEXT PRIMARY KEY,
			content      TEXT NOT NULL,
			tags         TEXT[] NOT NULL DEFAULT '{}',
			memory_type  TEXT NOT NULL,
			metadata     JSONB NOT NULL DEFAULT '{}',
			embedding    DOUBLE PRECISION[],
			created_at   DOUBLE PRECISION NOT NULL,
			updated_at   DOUBLE PRECISION NOT NULL,
			deleted_at   DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pg_memories_created ON memories(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pg_memories_deleted ON memories(deleted_at)`,
		`CREATE TABLE IF NOT EXISTS associations (
			source_hash       TEXT NOT NULL,
			target_hash       TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			similarity        DOUBLE PRECISION NOT NULL DEFAULT 0,
			metadata          JSONB NOT NULL DEFAULT '{}',
			created_at        DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (source_hash, target_hash, relationship_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pg_assoc_source ON associations(source_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_pg_assoc_target ON associations(target_hash)`,
		`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, s := range stmts {
		if _, err := b.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("pgstore: migrate: %w", err)
		}
	}
	return b.checkDimension(ctx)
}

// checkDimension enforces that a store is always opened with the
// embedding dimension it was created with.
func (b *Backend) checkDimension(ctx context.Context) error {
	var existing string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'dimension'`).Scan(&existing)
	if err == sql.ErrNoRows {
		_, err := b.db.ExecContext(ctx, `INSERT INTO schema_meta (key, value) VALUES ('dimension', $1)`, fmt.Sprint(b.dimension))
		return err
	}
	if err != nil {
		return fmt.Errorf("pgstore: read schema dimension: %w", err)
	}
	var want int
	fmt.Sscanf(existing, "%d", &want)
	if want != b.dimension {
		return fmt.Errorf("pgstore: store opened with dimension %d but was created with %d", b.dimension, want)
	}
	return nil
}

// Close releases the underlying database handle, if this backend opened it.
func (b *Backend) Close() error {
	if b.ownsDB && b.db != nil {
		return b.db.Close()
	}
	return nil
}

func toEpoch(t time.Time) float64 { return hashutil.SecondsSinceEpoch(t.UnixNano()) }

func fromEpoch(f float64) time.Time { return time.Unix(0, int64(f*1e9)).UTC() }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func encodeEmbedding(v []float32) pq.Float64Array {
	if len(v) == 0 {
		return nil
	}
	out := make(pq.Float64Array, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func decodeEmbedding(a pq.Float64Array) []float32 {
	if len(a) == 0 {
		return nil
	}
	out := make([]float32, len(a))
	for i, f := range a {
		out[i] = float32(f)
	}
	return out
}

func marshalMetadata(m models.MemoryMetadata) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMetadata(s string) models.MemoryMetadata {
	var m models.MemoryMetadata
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

const memoryColumns = `content_hash, content, tags, memory_type, metadata, embedding, created_at, updated_at, deleted_at`

// scanMemory scans a memories row in memoryColumns order.
func scanMemory(row interface {
	Scan(dest ...any) error
}) (*models.Memory, error) {
	var (
		hash, content, memType, metaJSON string
		tags                             pq.StringArray
		embedding                        pq.Float64Array
		createdAt, updatedAt             float64
		deletedAt                        sql.NullFloat64
	)
	if err := row.Scan(&hash, &content, &tags, &memType, &metaJSON, &embedding, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	m := &models.Memory{
		ContentHash: hash,
		Content:     content,
		Tags:        []string(tags),
		MemoryType:  ontology.ValidateType(memType),
		Metadata:    unmarshalMetadata(metaJSON),
		Embedding:   decodeEmbedding(embedding),
		CreatedAt:   fromEpoch(createdAt),
		UpdatedAt:   fromEpoch(updatedAt),
	}
	if deletedAt.Valid {
		dt := fromEpoch(deletedAt.Float64)
		m.DeletedAt = &dt
	}
	return m, nil
}

func tagsToSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range hashutil.NormalizeTags(tags) {
		set[t] = struct{}{}
	}
	return set
}

func tagSetMatches(have map[string]struct{}, want []string, mode store.TagMode) bool {
	if mode == store.TagModeAll {
		for _, t := range want {
			if _, ok := have[t]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range want {
		if _, ok := have[t]; ok {
			return true
		}
	}
	return false
}
