package core

// DistributeRemainingBandwidth fairly partitions leftover sending capacity
// (left) against leftover receiving capacity (right), saturating the
// smaller of the two totals without exceeding any single shard's cap on
// either side. See §4.5.
//
// Postconditions (enforced by the caller's tests, not by this function):
//   - sum(grants) == min(sum(left), sum(right))
//   - for every l: sum_r grants[(l,r)] <= left[l]
//   - for every r: sum_l grants[(l,r)] <= right[r]
func DistributeRemainingBandwidth(left, right map[ShardID]int) map[ShardLink]int {
	leftSum, rightSum := 0, 0
	for _, v := range left {
		leftSum += v
	}
	for _, v := range right {
		rightSum += v
	}

	if rightSum < leftSum {
		flipped := DistributeRemainingBandwidth(right, left)
		result := make(map[ShardLink]int, len(flipped))
		for link, grant := range flipped {
			result[ShardLink{From: link.To, To: link.From}] = grant
		}
		return result
	}

	leftByBandwidth := sortedByBandwidth(left)
	rightByBandwidth := sortedByBandwidth(right)

	grants := make(map[ShardLink]int)

	leftNum := len(leftByBandwidth)
	for _, leftEntry := range leftByBandwidth {
		leftBandwidth := leftEntry.bandwidth
		leftShard := leftEntry.shard

		rightNum := len(rightByBandwidth)
		for i := range rightByBandwidth {
			rightShard := rightByBandwidth[i].shard
			rightBandwidth := rightByBandwidth[i].bandwidth

			leftMax := leftBandwidth/rightNum + leftBandwidth%rightNum
			rightMax := rightBandwidth/leftNum + rightBandwidth%leftNum
			grant := min(leftMax, rightMax)

			grants[ShardLink{From: leftShard, To: rightShard}] = grant

			rightByBandwidth[i].bandwidth -= grant
			leftBandwidth -= grant
			rightNum--
		}

		if leftBandwidth != 0 {
			panic(ErrInvariantViolation)
		}
		leftNum--
	}

	return grants
}

type shardBandwidth struct {
	bandwidth int
	shard     ShardID
}

// sortedByBandwidth returns m's entries ascending by bandwidth, ties broken
// by shard ID. This mirrors the Rust implementation's `Vec<(usize,
// ShardUId)>` followed by a tuple sort, which orders first by bandwidth then
// by shard.
func sortedByBandwidth(m map[ShardID]int) []shardBandwidth {
	entries := make([]shardBandwidth, 0, len(m))
	for _, shard := range sortedShardIDKeys(m) {
		entries = append(entries, shardBandwidth{bandwidth: m[shard], shard: shard})
	}
	// sortedShardIDKeys already gives ascending shard order; now stable-sort
	// by bandwidth so ties keep that shard order.
	stableSortByBandwidth(entries)
	return entries
}

func stableSortByBandwidth(entries []shardBandwidth) {
	// Insertion sort: entries are few (shard counts are small, §5) and this
	// keeps the tie-break on shard ID from the prior sort stable.
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].bandwidth > entries[j].bandwidth {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}
