// Package wireformat decodes and encodes the full-export envelope used by
// GET /export and POST /import, reconciling the dashboard and CLI shapes
// into one internal representation.
package wireformat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cortexmemory/cortex/internal/ontology"
	"github.com/cortexmemory/cortex/internal/storeerr"
	"github.com/cortexmemory/cortex/pkg/models"
)

// Decode parses a wire envelope and returns its memories normalized to one
// internal shape: both Memory.MemoryType and Memory.Metadata.MemoryType are
// populated (only the latter round-trips through JSON), and each memory's
// type is coerced through the ontology validator exactly as the ingest path
// does, so an import can never introduce a type the store doesn't know.
//
// Both envelope shapes are accepted:
//   - dashboard: {"export_date": "...", "memories": [...]}
//   - CLI:       {"export_metadata": {"exported_at": "...", ...}, "memories": [...]}
//
// Neither timestamp field affects the decoded memories; they describe when
// the export was produced, not when any memory was created.
func Decode(data []byte) ([]models.Memory, error) {
	var env models.ExportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, storeerr.NewValidation("decode export envelope: %v", err)
	}
	if env.ExportDate == "" && env.ExportMetadata == nil {
		return nil, storeerr.NewValidation("export envelope missing both export_date and export_metadata")
	}

	memories := make([]models.Memory, len(env.Memories))
	for i, m := range env.Memories {
		if m.ContentHash == "" {
			return nil, storeerr.NewValidation("memory at index %d missing content_hash", i)
		}
		m.MemoryType = ontology.ValidateType(string(m.Metadata.MemoryType))
		m.Metadata.MemoryType = m.MemoryType
		memories[i] = m
	}
	return memories, nil
}

// EncodeDashboard builds a dashboard-style envelope: export_date at the
// top level, alongside the memories.
func EncodeDashboard(memories []models.Memory, now time.Time) ([]byte, error) {
	env := models.ExportEnvelope{
		ExportDate: now.UTC().Format(time.RFC3339),
		Memories:   normalizeForExport(memories),
	}
	return marshal(env)
}

// EncodeCLI builds a CLI-style envelope: a nested export_metadata block
// carrying the timestamp, a memory count, and the exporting source.
func EncodeCLI(memories []models.Memory, now time.Time, source string) ([]byte, error) {
	env := models.ExportEnvelope{
		ExportMetadata: &models.ExportMetadata{
			ExportedAt: now.UTC().Format(time.RFC3339),
			Count:      len(memories),
			Source:     source,
		},
		Memories: normalizeForExport(memories),
	}
	return marshal(env)
}

// normalizeForExport ensures Metadata.MemoryType mirrors MemoryType before
// marshaling, since Memory.MemoryType itself carries json:"-".
func normalizeForExport(memories []models.Memory) []models.Memory {
	out := make([]models.Memory, len(memories))
	for i, m := range memories {
		m.Metadata.MemoryType = m.MemoryType
		out[i] = m
	}
	return out
}

func marshal(env models.ExportEnvelope) ([]byte, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wireformat: marshal envelope: %w", err)
	}
	return data, nil
}
