// Package hybrid composes a local vector store with a remote cloud
// store behind the single store.Backend contract. Reads are served
// entirely from the local store; writes commit locally first and
// enqueue a sync operation that a background worker replays against
// the cloud store, so the caller never waits on cloud I/O.
package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexmemory/cortex/internal/store"
	"github.com/cortexmemory/cortex/internal/store/local"
	"github.com/cortexmemory/cortex/pkg/models"
)

// CloudBackend is the cloud-side capability set the hybrid backend
// depends on: the generic store contract plus the bulk pull that only
// initial sync needs.
type CloudBackend interface {
	store.Backend
	ListLive(ctx context.Context) ([]models.Memory, error)
}

// Config configures the hybrid backend.
type Config struct {
	Local *local.Backend
	Cloud CloudBackend

	SyncBatchSize   int           // default 50
	SyncInterval    time.Duration // default 5s
	MaxSyncAttempts int           // default 5, then parked to dead-letters
	DriftInterval   time.Duration // default 1h
	DrainDeadline   time.Duration // default 10s, cooperative shutdown
	Logger          *slog.Logger
}

// Backend composes a local and a cloud store.Backend into a single
// hybrid store.Backend.
type Backend struct {
	local *local.Backend
	cloud CloudBackend

	sync  *syncWorker
	drift *driftRunner
	log   *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New builds a hybrid backend. It does not start the background sync
// worker or drift detector — call Start for that — and it does not
// perform initial sync; call InitialSync explicitly, once, before the
// first Start on a freshly opened local store.
func New(cfg Config) (*Backend, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("hybrid: local backend is required")
	}
	if cfg.Cloud == nil {
		return nil, fmt.Errorf("hybrid: cloud backend is required")
	}
	if cfg.SyncBatchSize == 0 {
		cfg.SyncBatchSize = 50
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 5 * time.Second
	}
	if cfg.MaxSyncAttempts == 0 {
		cfg.MaxSyncAttempts = 5
	}
	if cfg.DriftInterval == 0 {
		cfg.DriftInterval = time.Hour
	}
	if cfg.DrainDeadline == 0 {
		cfg.DrainDeadline = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Backend{local: cfg.Local, cloud: cfg.Cloud, log: cfg.Logger}
	b.sync = newSyncWorker(b, cfg.SyncBatchSize, cfg.SyncInterval, cfg.MaxSyncAttempts, cfg.DrainDeadline, cfg.Logger)
	b.drift = newDriftRunner(b, cfg.DriftInterval, cfg.Logger)
	return b, nil
}

// Start begins the background sync worker and drift detector. Safe to
// call once per process lifetime; a second call is a no-op.
func (b *Backend) Start(ctx context.Context) {
	b.sync.Start(ctx)
	b.drift.Start(ctx)
}

// Stop cooperatively stops the background workers, draining the sync
// queue up to the configured deadline before leaving the remainder for
// the next run.
func (b *Backend) Stop() {
	b.drift.Stop()
	b.sync.Stop()
}

// Close stops the background workers and releases the local store. The
// cloud client holds no persistent connection to release.
func (b *Backend) Close() error {
	b.Stop()
	if err := b.cloud.Close(); err != nil {
		b.log.Warn("hybrid: cloud close", "error", err)
	}
	return b.local.Close()
}

// --- reads: served entirely from the local store, no cloud I/O ---

func (b *Backend) Retrieve(ctx context.Context, queryText string, k int) ([]models.ScoredMemory, error) {
	return b.local.Retrieve(ctx, queryText, k)
}

func (b *Backend) Recall(ctx context.Context, queryText string, start, end *time.Time, k int) ([]models.ScoredMemory, error) {
	return b.local.Recall(ctx, queryText, start, end, k)
}

func (b *Backend) SearchByTag(ctx context.Context, tags []string, mode store.TagMode) ([]models.Memory, error) {
	return b.local.SearchByTag(ctx, tags, mode)
}

func (b *Backend) ExactMatch(ctx context.Context, substr string) ([]models.Memory, error) {
	return b.local.ExactMatch(ctx, substr)
}

func (b *Backend) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	return b.local.GetByHash(ctx, hash)
}

func (b *Backend) FindConnected(ctx context.Context, hash string, depth int, relType *models.RelationshipType, dir models.Direction) ([]store.Connected, error) {
	return b.local.FindConnected(ctx, hash, depth, relType, dir)
}

func (b *Backend) ShortestPath(ctx context.Context, a, c string, relType *models.RelationshipType) ([]string, error) {
	return b.local.ShortestPath(ctx, a, c, relType)
}

func (b *Backend) GetSubgraph(ctx context.Context, hash string, radius int) (store.Subgraph, error) {
	return b.local.GetSubgraph(ctx, hash, radius)
}

// CreateAssociation writes a graph edge locally. Graph edges are not
// part of the Sync Operation protocol (store/update/delete only) and so
// never replicate to the cloud store — the hybrid backend treats the
// graph as local-derived data, same as the consolidator's own
// associations.
func (b *Backend) CreateAssociation(ctx context.Context, a models.Association) error {
	return b.local.CreateAssociation(ctx, a)
}

// HealthCheck reports the local store's health plus the current sync
// queue depth; cloud connectivity never gates this path, so a degraded
// network never makes the process appear unhealthy to its own caller.
// Use CloudHealth to check the remote side explicitly.
func (b *Backend) HealthCheck(ctx context.Context) (models.HealthCheck, error) {
	hc, err := b.local.HealthCheck(ctx)
	hc.Backend = "hybrid"
	if depth, qerr := b.local.QueueDepth(ctx); qerr == nil {
		if hc.Counts == nil {
			hc.Counts = map[string]int{}
		}
		hc.Counts["sync_queue_depth"] = depth
	}
	return hc, err
}

// CloudHealth reports the remote store's health without affecting the
// primary HealthCheck path.
func (b *Backend) CloudHealth(ctx context.Context) (models.HealthCheck, error) {
	return b.cloud.HealthCheck(ctx)
}

// --- writes: apply to the local store, then enqueue a sync op ---

func (b *Backend) Store(ctx context.Context, memory *models.Memory) (string, error) {
	hash, err := b.local.Store(ctx, memory)
	if err != nil {
		return "", err
	}
	b.enqueueUpsert(ctx, hash)
	return hash, nil
}

func (b *Backend) UpdateMetadata(ctx context.Context, hash string, delta store.MetadataDelta) (bool, error) {
	ok, err := b.local.UpdateMetadata(ctx, hash, delta)
	if err != nil || !ok {
		return ok, err
	}
	b.enqueueUpsert(ctx, hash)
	return true, nil
}

func (b *Backend) Delete(ctx context.Context, hash string) (bool, error) {
	ok, err := b.local.Delete(ctx, hash)
	if err != nil || !ok {
		return ok, err
	}
	b.enqueueDelete(ctx, hash)
	return true, nil
}

func (b *Backend) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return b.DeleteByTags(ctx, []string{tag}, store.TagModeAny)
}

func (b *Backend) DeleteByTags(ctx context.Context, tags []string, mode store.TagMode) (int, error) {
	live, err := b.local.SearchByTag(ctx, tags, mode)
	if err != nil {
		return 0, err
	}
	n, err := b.local.DeleteByTags(ctx, tags, mode)
	if err != nil {
		return 0, err
	}
	for _, m := range live {
		b.enqueueDelete(ctx, m.ContentHash)
	}
	return n, nil
}

// DeleteByTimeframe resolves the affected hashes before the bulk
// tombstone write so each one still gets its own queued delete op; the
// UPDATE itself only returns a count, not the hashes it touched.
func (b *Backend) DeleteByTimeframe(ctx context.Context, start, end time.Time, tag string) (int, error) {
	hashes, err := b.local.HashesInTimeframe(ctx, start, end, tag)
	if err != nil {
		return 0, err
	}
	n, err := b.local.DeleteByTimeframe(ctx, start, end, tag)
	if err != nil {
		return 0, err
	}
	for _, h := range hashes {
		b.enqueueDelete(ctx, h)
	}
	return n, nil
}

// PurgeTombstones purges both stores, per the composition rule that the
// daily tombstone task runs against LVS and CVS alike. A cloud purge
// failure is logged, not fatal — the local purge already succeeded and
// the cloud purge naturally retries on the next scheduled run.
func (b *Backend) PurgeTombstones(ctx context.Context, olderThanDays int) (int, error) {
	n, err := b.local.PurgeTombstones(ctx, olderThanDays)
	if err != nil {
		return n, err
	}
	if _, cerr := b.cloud.PurgeTombstones(ctx, olderThanDays); cerr != nil {
		b.log.Warn("hybrid: cloud tombstone purge failed", "error", cerr)
	}
	return n, nil
}

func (b *Backend) enqueueUpsert(ctx context.Context, hash string) {
	m, err := b.local.GetByHash(ctx, hash)
	if err != nil || m == nil {
		return // nothing live to sync; a subsequent delete queues separately
	}
	payload, _ := json.Marshal(m)
	if err := b.local.EnqueueSync(ctx, local.SyncOpStore, hash, string(payload)); err != nil {
		b.log.Warn("hybrid: enqueue sync op", "hash", hash, "error", err)
	}
}

func (b *Backend) enqueueDelete(ctx context.Context, hash string) {
	if err := b.local.EnqueueSync(ctx, local.SyncOpDelete, hash, ""); err != nil {
		b.log.Warn("hybrid: enqueue delete sync op", "hash", hash, "error", err)
	}
}
