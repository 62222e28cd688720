// Package hashutil provides content fingerprinting and tag normalization,
// the two pure-function utilities every write path depends on.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ContentHash computes a stable, platform-independent fingerprint of text:
// trailing whitespace is trimmed, line endings are normalized to "\n", and
// the result is hashed with SHA-256 and hex-encoded lowercase. Same input
// always yields the same hash, regardless of OS or prior run.
func ContentHash(content string) string {
	normalized := normalizeContent(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.TrimRight(content, " \t\n")
}

// NormalizeTags accepts a single comma-separated string, a slice of
// strings, or nil, and returns a deduplicated, order-preserving sequence
// of lowercase trimmed tokens. It is idempotent: normalizing an already
// normalized tag set returns the same set.
func NormalizeTags(input any) []string {
	var raw []string

	switch v := input.(type) {
	case nil:
		return []string{}
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
			// non-string elements are dropped, not errored
		}
	default:
		return []string{}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// TagsEqual reports whether two normalized tag sets contain the same
// tokens, ignoring order.
func TagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// HasTag reports whether tags contains the exact normalized tag (whole
// token match, not substring).
func HasTag(tags []string, tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether tags intersects candidates at all.
func HasAnyTag(tags []string, candidates []string) bool {
	for _, c := range candidates {
		if HasTag(tags, c) {
			return true
		}
	}
	return false
}

// SecondsSinceEpoch returns the normalized float-seconds-since-epoch
// timestamp format memories are stored with, given nanoseconds since the
// Unix epoch.
func SecondsSinceEpoch(unixNano int64) float64 {
	return float64(unixNano) / 1e9
}
