package quality

import "github.com/cortexmemory/cortex/pkg/models"

// RecordAccess increments access_count and refreshes last_accessed_at on
// a memory's metadata. Callers must apply this after a retrieval
// response has already been assembled and scored, never before — the
// scorer must see the pre-query access state, not the one its own
// lookup is about to create.
func RecordAccess(m *models.Memory, nowSeconds float64) {
	m.Metadata.AccessCount++
	m.Metadata.LastAccessedAt = &nowSeconds
}
