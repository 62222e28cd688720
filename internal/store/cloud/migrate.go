package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cortexmemory/cortex/internal/retry"
	"github.com/cortexmemory/cortex/internal/storeerr"
)

// ensureMigrated runs the lazy schema-migration handshake on first use:
// if the remote's schema is missing expected columns, request a
// migration and retry with exponential backoff until the remote
// metadata settles. Subsequent calls are no-ops once migrated is set.
func (b *Backend) ensureMigrated(ctx context.Context) error {
	if b.migrated {
		return nil
	}

	var resp struct {
		Columns []string `json:"columns"`
	}
	if err := b.doJSON(ctx, "GET", "/admin/schema", nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			// Remote predates the schema-introspection endpoint; assume
			// compatible rather than block every write on it forever.
			b.migrated = true
			return nil
		}
		return storeerr.NewSchema(fmt.Errorf("cloud: check schema: %w", err))
	}

	if hasRequiredColumns(resp.Columns) {
		b.migrated = true
		return nil
	}

	migrateResult := retry.Do(ctx, retry.Exponential(5, 200*time.Millisecond, 5*time.Second), func() error {
		var migrateResp struct {
			Migrated bool `json:"migrated"`
		}
		if err := b.doJSON(ctx, "POST", "/admin/schema/migrate", nil, &migrateResp); err != nil {
			return err
		}
		if !migrateResp.Migrated {
			return fmt.Errorf("cloud: remote schema not yet settled")
		}
		return nil
	})
	if migrateResult.Err != nil {
		return storeerr.NewSchema(fmt.Errorf("cloud: migrate after backoff: %w", migrateResult.Err))
	}

	b.migrated = true
	return nil
}

var requiredColumns = []string{"deleted_at", "tags", "metadata"}

func hasRequiredColumns(have []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, want := range requiredColumns {
		if !set[want] {
			return false
		}
	}
	return true
}
