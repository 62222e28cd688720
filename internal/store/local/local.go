// Package local implements the Local Vector Store: an embedded SQLite
// database holding memories, embeddings, tombstones and the association
// graph, with brute-force cosine similarity over stored embeddings.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/cortexmemory/cortex/internal/embeddings"
	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/pkg/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DedupConfig controls semantic-duplicate detection on Store.
type DedupConfig struct {
	Enabled     bool
	WindowHours int     // default 24
	Threshold   float32 // default 0.85
}

// Config contains configuration for the local backend.
type Config struct {
	Path      string // ":memory:" for an ephemeral store
	Dimension int
	Dedup     DedupConfig
	Embedder  embeddings.Provider // required for Retrieve/Recall
	Logger    *slog.Logger
}

// Backend implements store.Backend against a local SQLite database.
type Backend struct {
	db        *sql.DB
	dimension int
	dedup     DedupConfig
	embedder  embeddings.Provider
	log       *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New opens (creating if necessary) a local vector store at cfg.Path.
// Pragmas are embedded in the DSN so the driver reapplies them to every
// new pooled connection, not only at database creation.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Dedup.WindowHours == 0 {
		cfg.Dedup.WindowHours = 24
	}
	if cfg.Dedup.Threshold == 0 {
		cfg.Dedup.Threshold = 0.85
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=cache_size(-20000)&_pragma=journal_mode(WAL)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("local: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes writers anyway

	b := &Backend{db: db, dimension: cfg.Dimension, dedup: cfg.Dedup, embedder: cfg.Embedder, log: cfg.Logger}
	if err := b.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.checkDimension(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS memories (
			content_hash TEXT PRIMARY KEY,
			content      TEXT NOT NULL,
			tags         TEXT NOT NULL DEFAULT '[]',
			memory_type  TEXT NOT NULL,
			metadata     TEXT NOT NULL DEFAULT '{}',
			embedding    BLOB,
			created_at   REAL NOT NULL,
			updated_at   REAL NOT NULL,
			deleted_at   REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(deleted_at)`,
		`CREATE TABLE IF NOT EXISTS associations (
			source_hash       TEXT NOT NULL,
			target_hash       TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			similarity        REAL NOT NULL DEFAULT 0,
			metadata          TEXT NOT NULL DEFAULT '{}',
			created_at        REAL NOT NULL,
			PRIMARY KEY (source_hash, target_hash, relationship_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assoc_source ON associations(source_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_assoc_target ON associations(target_hash)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			op_type         TEXT NOT NULL,
			content_hash    TEXT NOT NULL,
			payload         TEXT,
			enqueue_time    REAL NOT NULL,
			attempt_count   INTEGER NOT NULL DEFAULT 0,
			next_attempt_at REAL NOT NULL DEFAULT 0,
			last_error      TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			op_type       TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			payload       TEXT,
			enqueue_time  REAL NOT NULL,
			attempt_count INTEGER NOT NULL,
			last_error    TEXT,
			parked_at     REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS consolidation_runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			horizon      TEXT NOT NULL,
			state        TEXT NOT NULL,
			stage        TEXT,
			stats        TEXT NOT NULL DEFAULT '{}',
			started_at   REAL NOT NULL,
			finished_at  REAL,
			error        TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := b.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("local: migrate: %w", err)
		}
	}
	return nil
}

// checkDimension enforces that a store is always opened with the
// embedding dimension it was created with; a mismatch is a fatal
// configuration error, never silently tolerated.
func (b *Backend) checkDimension(ctx context.Context) error {
	var existing string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'dimension'`).Scan(&existing)
	if err == sql.ErrNoRows {
		_, err := b.db.ExecContext(ctx, `INSERT INTO schema_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(b.dimension))
		return err
	}
	if err != nil {
		return fmt.Errorf("local: read schema dimension: %w", err)
	}
	want, _ := strconv.Atoi(existing)
	if want != b.dimension {
		return fmt.Errorf("local: store opened with dimension %d but was created with %d", b.dimension, want)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error { return b.db.Close() }

func toEpoch(t time.Time) float64 { return hashutil.SecondsSinceEpoch(t.UnixNano()) }

func fromEpoch(f float64) time.Time { return time.Unix(0, int64(f*1e9)).UTC() }

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	data := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

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

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func unmarshalTags(s string) []string {
	var tags []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &tags)
	return tags
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

// scanMemory scans a memories row in the fixed column order used by every
// query in this package: content_hash, content, tags, memory_type,
// metadata, embedding, created_at, updated_at, deleted_at.
func scanMemory(row interface {
	Scan(dest ...any) error
}) (*models.Memory, error) {
	var (
		hash, content, tagsJSON, memType, metaJSON string
		embeddingBlob                              []byte
		createdAt, updatedAt                        float64
		deletedAt                                   sql.NullFloat64
	)
	if err := row.Scan(&hash, &content, &tagsJSON, &memType, &metaJSON, &embeddingBlob, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	m := &models.Memory{
		ContentHash: hash,
		Content:     content,
		Tags:        unmarshalTags(tagsJSON),
		MemoryType:  ontology.ValidateType(memType),
		Metadata:    unmarshalMetadata(metaJSON),
		Embedding:   decodeEmbedding(embeddingBlob),
		CreatedAt:   fromEpoch(createdAt),
		UpdatedAt:   fromEpoch(updatedAt),
	}
	if deletedAt.Valid {
		dt := fromEpoch(deletedAt.Float64)
		m.DeletedAt = &dt
	}
	return m, nil
}

const memoryColumns = `content_hash, content, tags, memory_type, metadata, embedding, created_at, updated_at, deleted_at`

func tagsToSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range hashutil.NormalizeTags(tags) {
		set[t] = struct{}{}
	}
	return set
}
