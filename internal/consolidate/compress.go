package consolidate

import (
	"fmt"
	"sort"
	"time"

	"github.com/cortexmemory/cortex/internal/hashutil"
	"github.com/cortexmemory/cortex/pkg/models"
)

// Summarize builds a single pattern-type memory representing a
// cluster: the union of member tags, a content digest truncated to
// maxChars, and metadata recording the member hashes and the cluster's
// temporal span. Member memories are left untouched — compression adds
// a summary alongside them, it never replaces the originals.
func Summarize(members []models.Memory, maxChars int) models.Memory {
	tagSet := make(map[string]struct{})
	hashes := make([]string, 0, len(members))
	contents := make([]string, 0, len(members))
	var start, end time.Time

	for i, m := range members {
		for _, t := range m.Tags {
			tagSet[t] = struct{}{}
		}
		hashes = append(hashes, m.ContentHash)
		contents = append(contents, m.Content)
		if i == 0 || m.CreatedAt.Before(start) {
			start = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(end) {
			end = m.CreatedAt
		}
	}

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	tags = hashutil.NormalizeTags(tags)

	spanDays := end.Sub(start).Hours() / 24

	return models.Memory{
		Content:    compressContent(contents, maxChars),
		Tags:       tags,
		MemoryType: models.MemoryTypePattern,
		Metadata: models.MemoryMetadata{
			MemoryType: models.MemoryTypePattern,
			Extra: map[string]any{
				"cluster_member_hashes": hashes,
				"temporal_span": map[string]any{
					"start":     hashutil.SecondsSinceEpoch(start.UnixNano()),
					"end":       hashutil.SecondsSinceEpoch(end.UnixNano()),
					"span_days": spanDays,
				},
			},
		},
	}
}

// compressContent joins member contents up to a character budget,
// preferring to stop at a whole member rather than cut one mid-way,
// then appends an ellipsis if anything was left out.
func compressContent(contents []string, maxChars int) string {
	header := fmt.Sprintf("Pattern across %d related memories: ", len(contents))
	budget := maxChars - len(header)
	if budget < 0 {
		budget = 0
	}

	body := ""
	truncated := false
	for _, c := range contents {
		addition := c
		if body != "" {
			addition = "; " + c
		}
		if len(body)+len(addition) > budget {
			truncated = true
			break
		}
		body += addition
	}

	out := header + body
	if truncated {
		out += "..."
	}
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}
