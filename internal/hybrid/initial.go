package hybrid

import (
	"context"

	"github.com/cortexmemory/cortex/internal/storeerr"
)

// InitialSync pulls every live remote memory into the local store,
// skipping any hash that is already tombstoned locally so that a
// device which deleted a memory never resurrects it via another
// device's sync. Call this once, before Start, on a local store that
// may be empty or only partially populated.
func (b *Backend) InitialSync(ctx context.Context) (pulled, skipped int, err error) {
	remote, err := b.cloud.ListLive(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, m := range remote {
		tombstoned, terr := b.local.IsTombstoned(ctx, m.ContentHash)
		if terr != nil {
			b.log.Warn("hybrid: initial sync tombstone check", "hash", m.ContentHash, "error", terr)
			continue
		}
		if tombstoned {
			skipped++
			continue
		}

		existing, gerr := b.local.GetByHash(ctx, m.ContentHash)
		if gerr != nil {
			b.log.Warn("hybrid: initial sync lookup", "hash", m.ContentHash, "error", gerr)
			continue
		}
		if existing != nil {
			continue // already present locally
		}

		mm := m
		if _, serr := b.local.Store(ctx, &mm); serr != nil && !storeerr.IsKind(serr, storeerr.KindDuplicateExact) {
			b.log.Warn("hybrid: initial sync store", "hash", m.ContentHash, "error", serr)
			continue
		}
		pulled++
	}
	return pulled, skipped, nil
}
