package record

import "sort"

// Finalize returns a copy of items stably sorted by the named field.
//
// ISO-8601 timestamps and user principal names both sort correctly under
// plain lexical comparison. Items without the field sort first. No
// deduplication is performed: partitions are disjoint by construction, so a
// duplicate here means a partitioning bug upstream.
func Finalize(items []Item, sortKey string) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Key(sortKey) < sorted[b].Key(sortKey)
	})

	return sorted
}
