package hybrid

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexmemory/cortex/internal/store"
)

// driftRunner periodically compares local and cloud state and reports
// discrepancies. It never blocks, and is never blocked by, the sync
// worker: it only reads from the cloud and repairs metadata locally, it
// never queues writes back out.
type driftRunner struct {
	b        *Backend
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newDriftRunner(b *Backend, interval time.Duration, log *slog.Logger) *driftRunner {
	return &driftRunner{b: b, interval: interval, log: log}
}

func (d *driftRunner) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()
	go d.run(ctx)
}

func (d *driftRunner) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer func() {
		d.mu.Lock()
		d.running = false
		close(d.doneCh)
		d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			report, err := d.check(ctx)
			if err != nil {
				d.log.Warn("hybrid: drift check failed", "error", err)
				continue
			}
			if report.Diverged > 0 {
				d.log.Warn("hybrid: drift detected",
					"local_count", report.LocalCount, "cloud_count", report.CloudCount,
					"diverged", report.Diverged, "repaired", report.Repaired)
			}
		}
	}
}

func (d *driftRunner) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	doneCh := d.doneCh
	d.mu.Unlock()
	<-doneCh
}

// Report summarizes one drift check.
type Report struct {
	LocalCount int
	CloudCount int
	Diverged   int
	Repaired   int
}

const driftSampleSize = 50

// check compares live counts between stores and, for a bounded sample
// of local hashes, compares updated_at against the cloud's copy,
// repairing the local side's metadata when the cloud is strictly newer
// (last-writer-wins). Content itself is immutable once a hash exists,
// so repair never touches content — only metadata/tags, the only
// fields update_metadata can change.
func (d *driftRunner) check(ctx context.Context) (Report, error) {
	localHashes, err := d.b.local.AllLiveHashes(ctx)
	if err != nil {
		return Report{}, err
	}
	cloudHC, err := d.b.cloud.HealthCheck(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{LocalCount: len(localHashes), CloudCount: cloudHC.Counts["live"]}

	i := 0
	for hash, localUpdated := range localHashes {
		if i >= driftSampleSize {
			break
		}
		i++

		remote, err := d.b.cloud.GetByHash(ctx, hash)
		if err != nil || remote == nil {
			continue
		}
		if !remote.UpdatedAt.After(localUpdated) {
			continue
		}

		report.Diverged++
		delta := store.MetadataDelta{Tags: remote.Tags, Metadata: metadataToPatch(remote.Metadata)}
		if ok, err := d.b.local.UpdateMetadata(ctx, hash, delta); err == nil && ok {
			report.Repaired++
		}
	}
	return report, nil
}
