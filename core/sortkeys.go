package core

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// sortShardIDs sorts ids ascending in place. Every walk over a map keyed by
// ShardID or ShardLink in this package whose order affects an outcome uses
// this order, so that two shards running the same algorithm over the same
// inputs observe identical iteration order and therefore agree on every RNG
// draw. Order-independent walks (sums, validation) range over the map
// directly.
func sortShardIDs(ids []ShardID) {
	slices.Sort(ids)
}

// sortedShardIDKeys returns the keys of m in canonical ascending order.
func sortedShardIDKeys[V any](m map[ShardID]V) []ShardID {
	ids := maps.Keys(m)
	sortShardIDs(ids)
	return ids
}

// sortedShardLinkKeys returns the keys of m in canonical order: first by
// From, then by To.
func sortedShardLinkKeys[V any](m map[ShardLink]V) []ShardLink {
	links := maps.Keys(m)
	slices.SortFunc(links, func(a, b ShardLink) int {
		if a.From != b.From {
			return int(a.From) - int(b.From)
		}
		return int(a.To) - int(b.To)
	})
	return links
}
