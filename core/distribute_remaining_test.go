package core

import (
	"math/rand"
	"testing"
)

func TestDistributeRemainingBandwidthSimpleEqualCase(t *testing.T) {
	left := map[ShardID]int{0: 100, 1: 100, 2: 100}
	right := map[ShardID]int{0: 100, 1: 100, 2: 100}

	grants := DistributeRemainingBandwidth(left, right)

	total := 0
	for _, g := range grants {
		total += g
	}
	if total != 300 {
		t.Fatalf("expected total grants of 300, got %d", total)
	}
}

func generateShards(rng *rand.Rand, n int) []ShardID {
	shards := make([]ShardID, n)
	for i := range shards {
		shards[i] = ShardID(i)
	}
	return shards
}

func generateLimits(shards []ShardID, totalBandwidth int, rng *rand.Rand) map[ShardID]int {
	limits := make(map[ShardID]int, len(shards))
	per := totalBandwidth / len(shards)
	for _, shard := range shards {
		limits[shard] = per
	}
	limits[shards[0]] += totalBandwidth % len(shards)

	for i := 0; i < len(shards)*10; i++ {
		s1 := shards[rng.Intn(len(shards))]
		s2 := shards[rng.Intn(len(shards))]
		if s1 == s2 {
			continue
		}
		maxMoved := min(limits[s1], MaxShardBandwidth-limits[s2])
		if maxMoved > 0 {
			moved := rng.Intn(maxMoved)
			limits[s1] -= moved
			limits[s2] += moved
		}
	}
	return limits
}

func sumLimits(m map[ShardID]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// TestDistributeRemainingBandwidthProperty checks, over 100,000 random
// (left, right) pairs across four workload shapes, that every grant set
// satisfies: sum(grants) == min(sum(left), sum(right)), and no shard's
// grants on either side exceed its own limit.
func TestDistributeRemainingBandwidthProperty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100,000-iteration property test in short mode")
	}

	rng := rand.New(rand.NewSource(0))
	workloads := []string{"random", "equal_total", "slightly_different_total", "identical"}

	for i := 0; i < 100_000; i++ {
		numShards := 1 + rng.Intn(9)
		shards := generateShards(rng, numShards)
		workload := workloads[rng.Intn(len(workloads))]

		genTotal := func() int { return rng.Intn(MaxShardBandwidth+1) * numShards }

		var left, right map[ShardID]int
		switch workload {
		case "random":
			left = generateLimits(shards, genTotal(), rng)
			right = generateLimits(shards, genTotal(), rng)
		case "equal_total":
			total := genTotal()
			left = generateLimits(shards, total, rng)
			right = generateLimits(shards, total, rng)
		case "slightly_different_total":
			total := genTotal()
			left = generateLimits(shards, total, rng)
			if total >= 100 {
				total -= 100
			}
			right = generateLimits(shards, total, rng)
		case "identical":
			total := genTotal()
			left = generateLimits(shards, total, rng)
			right = make(map[ShardID]int, len(left))
			for k, v := range left {
				right[k] = v
			}
		}

		leftSum, rightSum := sumLimits(left), sumLimits(right)
		grants := DistributeRemainingBandwidth(left, right)

		grantsSum := 0
		leftUsed := make(map[ShardID]int)
		rightUsed := make(map[ShardID]int)
		for link, grant := range grants {
			grantsSum += grant
			leftUsed[link.From] += grant
			rightUsed[link.To] += grant
		}

		wantSum := leftSum
		if rightSum < wantSum {
			wantSum = rightSum
		}
		if grantsSum != wantSum {
			t.Fatalf("workload=%s: grants sum %d != min(left=%d, right=%d)", workload, grantsSum, leftSum, rightSum)
		}
		for shard, limit := range left {
			if leftUsed[shard] > limit {
				t.Fatalf("workload=%s: shard %s left usage %d exceeds limit %d", workload, shard, leftUsed[shard], limit)
			}
		}
		for shard, limit := range right {
			if rightUsed[shard] > limit {
				t.Fatalf("workload=%s: shard %s right usage %d exceeds limit %d", workload, shard, rightUsed[shard], limit)
			}
		}
	}
}
