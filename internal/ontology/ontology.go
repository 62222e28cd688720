// Package ontology implements the memory-type taxonomy and relationship
// classifier every write path validates against.
package ontology

import (
	"strings"

	"github.com/cortexmemory/cortex/pkg/models"
)

var baseTypes = map[models.MemoryType]bool{
	models.MemoryTypeObservation: true,
	models.MemoryTypeDecision:    true,
	models.MemoryTypeLearning:    true,
	models.MemoryTypeError:       true,
	models.MemoryTypePattern:     true,
}

// subtypes map domain-specific tokens onto one of the five base types.
// ValidateType returns the mapped base type for a subtype, not the
// subtype itself; only unrecognized tokens fall back to observation.
var subtypes = map[string]models.MemoryType{
	"bugfix":      models.MemoryTypeError,
	"incident":    models.MemoryTypeError,
	"regression":  models.MemoryTypeError,
	"insight":     models.MemoryTypeLearning,
	"lesson":      models.MemoryTypeLearning,
	"architecture": models.MemoryTypeDecision,
	"tradeoff":    models.MemoryTypeDecision,
	"habit":       models.MemoryTypePattern,
	"trend":       models.MemoryTypePattern,
	"note":        models.MemoryTypeObservation,
}

// legacyTypes maps tokens used by older schema versions onto observation.
// MigrateLegacyType is run exactly once per record during schema migration.
var legacyTypes = map[string]bool{
	"task":     true,
	"note":     true,
	"standard": true,
	"todo":     true,
	"reminder": true,
}

// ValidateType returns t if it names a known base type, the mapped base
// type if t is a known subtype, and otherwise MemoryTypeObservation. This is soft validation:
// it never errors, matching the store contract's "coerce, don't reject"
// rule for an unrecognized memory_type.
func ValidateType(t string) models.MemoryType {
	lowered := models.MemoryType(strings.ToLower(strings.TrimSpace(t)))
	if baseTypes[lowered] {
		return lowered
	}
	if mapped, ok := subtypes[string(lowered)]; ok {
		return mapped
	}
	return models.MemoryTypeObservation
}

// MigrateLegacyType maps a legacy type token to its modern equivalent.
// It is idempotent but intended to run once per record during migration.
func MigrateLegacyType(t string) models.MemoryType {
	lowered := strings.ToLower(strings.TrimSpace(t))
	if legacyTypes[lowered] {
		return models.MemoryTypeObservation
	}
	return ValidateType(t)
}

// symmetricTypes store both (A,B) and (B,A) rows with identical payload.
var symmetricTypes = map[models.RelationshipType]bool{
	models.RelRelated:     true,
	models.RelContradicts: true,
}

// IsSymmetric reports whether relationshipType stores a mirrored edge pair.
func IsSymmetric(relationshipType models.RelationshipType) bool {
	return symmetricTypes[relationshipType]
}

// ValidRelationship reports whether t is a recognized relationship type.
func ValidRelationship(t models.RelationshipType) bool {
	switch t {
	case models.RelRelated, models.RelContradicts,
		models.RelCauses, models.RelFixes, models.RelSupports,
		models.RelOpposes, models.RelFollows:
		return true
	default:
		return false
	}
}

// causalMarkers are substrings whose presence near a discovered association
// suggests a classifiable asymmetric relationship rather than a bare
// "related" edge. Used by the consolidator's creative-association stage.
var causalMarkers = map[string]models.RelationshipType{
	"because":  models.RelCauses,
	"causes":   models.RelCauses,
	"caused by": models.RelCauses,
	"fixes":    models.RelFixes,
	"fixed by": models.RelFixes,
	"resolves": models.RelFixes,
	"supports": models.RelSupports,
	"confirms": models.RelSupports,
	"opposes":  models.RelOpposes,
	"contradicts": models.RelContradicts,
	"then":     models.RelFollows,
	"after":    models.RelFollows,
}

// ClassifyRelationship inspects the surrounding text of two associated
// memories for a causal marker and returns the matching asymmetric
// relationship type, or ("", false) if no marker is found.
func ClassifyRelationship(contextText string) (models.RelationshipType, bool) {
	lowered := strings.ToLower(contextText)
	for marker, rel := range causalMarkers {
		if strings.Contains(lowered, marker) {
			return rel, true
		}
	}
	return "", false
}
