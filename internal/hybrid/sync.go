package hybrid

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/store/local"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// syncWorker drains the local sync queue against the cloud backend on a
// fixed interval, one batch at a time, cooperatively yielding between
// batches so it never holds the local write lock during cloud I/O.
// Modeled on a heartbeat runner's ticker/stopCh/doneCh shape,
// generalized from a single periodic tick to draining a persisted work
// queue.
type syncWorker struct {
	b             *Backend
	batchSize     int
	interval      time.Duration
	maxAttempts   int
	drainDeadline time.Duration
	log           *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newSyncWorker(b *Backend, batchSize int, interval time.Duration, maxAttempts int, drainDeadline time.Duration, log *slog.Logger) *syncWorker {
	return &syncWorker{b: b, batchSize: batchSize, interval: interval, maxAttempts: maxAttempts, drainDeadline: drainDeadline, log: log}
}

func (w *syncWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
}

func (w *syncWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer func() {
		w.mu.Lock()
		w.running = false
		close(w.doneCh)
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain(w.drainDeadline)
			return
		case <-w.stopCh:
			w.drain(w.drainDeadline)
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// Stop halts the worker, draining the queue up to the configured
// deadline before returning with whatever remains parked for the next
// run.
func (w *syncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()
	<-doneCh
}

// drain runs batches back-to-back until the queue is empty or the
// deadline elapses, so shutdown never abandons work mid-batch.
func (w *syncWorker) drain(deadline time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	for {
		n := w.drainOnce(ctx)
		if n == 0 || ctx.Err() != nil {
			return
		}
	}
}

// drainOnce applies one batch and returns how many operations it
// processed; an empty queue returns 0.
func (w *syncWorker) drainOnce(ctx context.Context) int {
	ops, err := w.b.local.DequeueBatch(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("hybrid: dequeue sync batch", "error", err)
		return 0
	}
	for _, op := range ops {
		w.apply(ctx, op)
	}
	return len(ops)
}

func (w *syncWorker) apply(ctx context.Context, op local.SyncOp) {
	err := w.applyOp(ctx, op)
	if err == nil || isAlreadyConverged(err) {
		if ackErr := w.b.local.AckSynced(ctx, op.ID); ackErr != nil {
			w.log.Warn("hybrid: ack synced op", "id", op.ID, "error", ackErr)
		}
		return
	}

	attempts := op.AttemptCount + 1
	if attempts >= w.maxAttempts {
		if derr := w.b.local.ParkDeadLetter(ctx, op, err.Error()); derr != nil {
			w.log.Error("hybrid: park dead letter", "hash", op.ContentHash, "error", derr)
		} else {
			w.log.Warn("hybrid: sync op parked after exhausting retries", "hash", op.ContentHash, "op_type", op.OpType, "attempts", attempts)
		}
		return
	}

	backoff := time.Duration(1<<uint(attempts)) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	if _, rerr := w.b.local.RequeueWithBackoff(ctx, op.ID, time.Now().UTC().Add(backoff), err.Error()); rerr != nil {
		w.log.Warn("hybrid: requeue sync op", "hash", op.ContentHash, "error", rerr)
	}
}

func (w *syncWorker) applyOp(ctx context.Context, op local.SyncOp) error {
	switch op.OpType {
	case local.SyncOpDelete:
		_, err := w.b.cloud.Delete(ctx, op.ContentHash)
		return err
	case local.SyncOpStore, local.SyncOpUpdate:
		return w.applyUpsert(ctx, op)
	default:
		return nil
	}
}

// applyUpsert replays the hash's current local state against the cloud
// store, trying Store first and falling back to UpdateMetadata when the
// cloud already holds this exact hash. Re-reading the local row here
// (rather than replaying op.Payload verbatim) means a hash that changed
// again after being enqueued always syncs its latest state rather than
// a stale snapshot.
func (w *syncWorker) applyUpsert(ctx context.Context, op local.SyncOp) error {
	m, err := w.b.local.GetByHash(ctx, op.ContentHash)
	if err != nil {
		return err
	}
	if m == nil {
		return nil // deleted again locally since enqueue; nothing to push
	}

	_, err = w.b.cloud.Store(ctx, &models.Memory{
		ContentHash: m.ContentHash,
		Content:     m.Content,
		Tags:        m.Tags,
		MemoryType:  m.MemoryType,
		Metadata:    m.Metadata,
		Embedding:   m.Embedding,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	})
	if err == nil {
		return nil
	}
	if storeerr.IsKind(err, storeerr.KindDuplicateExact) {
		_, err = w.b.cloud.UpdateMetadata(ctx, m.ContentHash, store.MetadataDelta{Tags: m.Tags, Metadata: metadataToPatch(m.Metadata)})
		return err
	}
	return err
}

// isAlreadyConverged reports whether err means the cloud already
// reflects the intended end state, so the op should be acked rather
// than retried — e.g. a delete for a hash the cloud never had.
func isAlreadyConverged(err error) bool {
	return storeerr.IsKind(err, storeerr.KindNotFound)
}

// metadataToPatch flattens a memory's typed metadata fields back into
// the free-form patch shape UpdateMetadata expects.
func metadataToPatch(m models.MemoryMetadata) map[string]any {
	patch := map[string]any{}
	for k, v := range m.Extra {
		patch[k] = v
	}
	if m.QualityScore != nil {
		patch["quality_score"] = *m.QualityScore
	}
	if m.Credibility != nil {
		patch["credibility"] = *m.Credibility
	}
	if m.LastAccessedAt != nil {
		patch["last_accessed_at"] = *m.LastAccessedAt
	}
	if m.EpisodeID != "" {
		patch["episode_id"] = m.EpisodeID
	}
	patch["access_count"] = m.AccessCount
	return patch
}
