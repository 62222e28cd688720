package consolidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// S3Uploader mirrors an archived record to an S3-compatible bucket. The
// concrete implementation wraps github.com/aws/aws-sdk-go-v2/service/s3;
// this interface keeps the pipeline decoupled from the AWS SDK when no
// archive bucket is configured.
type S3Uploader interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// ArchiveWriter persists a memory to an append-only JSON-lines file
// before it is tombstoned, so a forgotten memory can still be restored
// from cold storage. A nil S3 disables the optional cloud mirror.
type ArchiveWriter struct {
	BasePath string
	S3       S3Uploader
}

// Write appends m as one JSON line to <BasePath>/<horizon>/<date>.jsonl
// and, if an S3Uploader is configured, mirrors the same record
// remotely under a per-hash key.
func (a *ArchiveWriter) Write(ctx context.Context, horizon Horizon, m models.Memory) error {
	if a.BasePath == "" {
		return fmt.Errorf("consolidate: archive path not configured")
	}

	dir := filepath.Join(a.BasePath, string(horizon))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("consolidate: create archive dir: %w", err)
	}

	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("consolidate: marshal archive record: %w", err)
	}
	line = append(line, '\n')

	date := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, date+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("consolidate: open archive file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("consolidate: write archive record: %w", err)
	}

	if a.S3 != nil {
		key := fmt.Sprintf("%s/%s/%s.json", horizon, date, m.ContentHash)
		if err := a.S3.PutObject(ctx, key, bytes.TrimRight(line, "\n")); err != nil {
			return fmt.Errorf("consolidate: mirror archive record to s3: %w", err)
		}
	}
	return nil
}

// ShouldForget reports whether m is eligible for controlled forgetting:
// its decayed relevance has fallen below threshold, it hasn't been
// accessed in at least accessThresholdDays, and it carries no protected
// tag. Both conditions must hold — a rarely-accessed but still-relevant
// memory, or a stale but frequently-accessed one, is kept either way.
func ShouldForget(m models.Memory, relevance, threshold float64, accessThresholdDays int, now time.Time) bool {
	if hasProtectedTag(m.Tags) {
		return false
	}
	if relevance >= threshold {
		return false
	}

	lastAccess := m.UpdatedAt
	if m.Metadata.LastAccessedAt != nil {
		lastAccess = time.Unix(0, int64(*m.Metadata.LastAccessedAt*1e9)).UTC()
	}
	ageDays := now.Sub(lastAccess).Hours() / 24
	return ageDays >= float64(accessThresholdDays)
}
