package local

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexmemory/cortex/internal/storeerr"
)

// SyncOpType enumerates the operations the hybrid backend's sync worker
// replays against the cloud store.
type SyncOpType string

const (
	SyncOpStore  SyncOpType = "store"
	SyncOpUpdate SyncOpType = "update"
	SyncOpDelete SyncOpType = "delete"
)

// SyncOp is one queued operation awaiting replay against the cloud store.
// Payload is a JSON snapshot of the memory's current local state — full
// state rather than a diff, so a later update coalesces into an earlier
// pending store simply by overwriting the payload.
type SyncOp struct {
	ID            int64
	OpType        SyncOpType
	ContentHash   string
	Payload       string
	EnqueueTime   time.Time
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
}

// EnqueueSync queues op against hash, coalescing with whatever is already
// pending for that hash: a delete discards any pending store/update and
// replaces it; a store/update replaces an earlier pending store/update
// rather than stacking a second row. FIFO order across distinct hashes is
// preserved because a coalesced row keeps a fresh id only when replaced —
// ordering within a hash never matters once coalesced to one row.
func (b *Backend) EnqueueSync(ctx context.Context, opType SyncOpType, hash, payload string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerr.NewTransient(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE content_hash = ?`, hash); err != nil {
		return storeerr.NewTransient(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (op_type, content_hash, payload, enqueue_time, attempt_count, next_attempt_at)
		VALUES (?, ?, ?, ?, 0, 0)`,
		string(opType), hash, payload, toEpoch(time.Now().UTC()))
	if err != nil {
		return storeerr.NewTransient(err)
	}
	return tx.Commit()
}

// DequeueBatch returns up to limit queued operations whose next attempt is
// due, in FIFO order.
func (b *Backend) DequeueBatch(ctx context.Context, limit int) ([]SyncOp, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, op_type, content_hash, payload, enqueue_time, attempt_count, next_attempt_at, last_error
		FROM sync_queue WHERE next_attempt_at <= ? ORDER BY id ASC LIMIT ?`,
		toEpoch(time.Now().UTC()), limit)
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	var out []SyncOp
	for rows.Next() {
		var op SyncOp
		var opType string
		var enqueueAt, nextAttempt float64
		var lastErr sql.NullString
		if err := rows.Scan(&op.ID, &opType, &op.ContentHash, &op.Payload, &enqueueAt, &op.AttemptCount, &nextAttempt, &lastErr); err != nil {
			return nil, storeerr.NewTransient(err)
		}
		op.OpType = SyncOpType(opType)
		op.EnqueueTime = fromEpoch(enqueueAt)
		op.NextAttemptAt = fromEpoch(nextAttempt)
		op.LastError = lastErr.String
		out = append(out, op)
	}
	return out, rows.Err()
}

// AckSynced removes a successfully-applied operation from the queue.
func (b *Backend) AckSynced(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return storeerr.NewTransient(err)
	}
	return nil
}

// RequeueWithBackoff records a transient failure and schedules the next
// attempt at nextAttempt, returning the operation's new attempt count.
func (b *Backend) RequeueWithBackoff(ctx context.Context, id int64, nextAttempt time.Time, lastErr string) (int, error) {
	_, err := b.db.ExecContext(ctx, `
		UPDATE sync_queue SET attempt_count = attempt_count + 1, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		toEpoch(nextAttempt), lastErr, id)
	if err != nil {
		return 0, storeerr.NewTransient(err)
	}
	var attempts int
	if err := b.db.QueryRowContext(ctx, `SELECT attempt_count FROM sync_queue WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, storeerr.NewTransient(err)
	}
	return attempts, nil
}

// ParkDeadLetter moves op into the dead-letter table after its retry
// budget is exhausted, removing it from the live queue so the worker
// never spins on a permanently failing hash.
func (b *Backend) ParkDeadLetter(ctx context.Context, op SyncOp, lastErr string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerr.NewTransient(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dead_letters (op_type, content_hash, payload, enqueue_time, attempt_count, last_error, parked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(op.OpType), op.ContentHash, op.Payload, toEpoch(op.EnqueueTime), op.AttemptCount, lastErr, toEpoch(time.Now().UTC()))
	if err != nil {
		return storeerr.NewTransient(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, op.ID); err != nil {
		return storeerr.NewTransient(err)
	}
	return tx.Commit()
}

// QueueDepth reports how many operations are currently pending sync.
func (b *Backend) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, storeerr.NewTransient(err)
	}
	return n, nil
}

// IsTombstoned reports whether hash exists locally and is tombstoned.
// Initial sync consults this to avoid resurrecting a memory that was
// deleted on this device before a remote pull completed.
func (b *Backend) IsTombstoned(ctx context.Context, hash string) (bool, error) {
	var deletedAt sql.NullFloat64
	err := b.db.QueryRowContext(ctx, `SELECT deleted_at FROM memories WHERE content_hash = ?`, hash).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeerr.NewTransient(err)
	}
	return deletedAt.Valid, nil
}

// AllLiveHashes returns every currently live content hash and its
// updated_at, for drift detection's count and sample comparison against
// the cloud store.
func (b *Backend) AllLiveHashes(ctx context.Context) (map[string]time.Time, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT content_hash, updated_at FROM memories WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, storeerr.NewTransient(err)
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var hash string
		var updatedAt float64
		if err := rows.Scan(&hash, &updatedAt); err != nil {
			return nil, storeerr.NewTransient(err)
		}
		out[hash] = fromEpoch(updatedAt)
	}
	return out, rows.Err()
}
