// Package page implements the pagination/truncation guard: any read result
// capped by a backend is annotated with explicit, machine-readable truncation
// metadata and a continuation cursor.
package page

import (
	"fmt"

	"github.com/tamshai/gateway/pkg/api"
)

// DefaultSoftCap is the default page size when config does not set one.
const DefaultSoftCap = 50

// Guard trims a raw result fetched with softCap+1 rows down to the soft cap
// and derives the truncation metadata. sortKey names the row field the result
// is ordered by; the continuation cursor is derived from the last kept row.
func Guard(rows []map[string]any, softCap int, sortKey string) ([]map[string]any, *api.TruncationMetadata) {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}

	if len(rows) <= softCap {
		return rows, &api.TruncationMetadata{
			ReturnedCount: len(rows),
			HasMore:       false,
		}
	}

	kept := rows[:softCap]
	meta := &api.TruncationMetadata{
		ReturnedCount: softCap,
		HasMore:       true,
		TotalEstimate: fmt.Sprintf("more than %d", softCap),
		Warning:       api.TruncationWarning,
	}
	if cursor := lastSortKey(kept, sortKey); cursor != "" {
		meta.NextCursor = api.EncodeCursor(cursor)
	}
	return kept, meta
}

// lastSortKey extracts the sort-key value of the final kept row as a string.
func lastSortKey(rows []map[string]any, sortKey string) string {
	if len(rows) == 0 || sortKey == "" {
		return ""
	}
	v, ok := rows[len(rows)-1][sortKey]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
