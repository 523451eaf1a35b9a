package core

import "fmt"

// validateBlock checks the structural invariants of a freshly produced block:
// no present chunk carries a negative incoming or outgoing receipts size.
// Only the block itself is checked; pastBlocks is not read. Panics on
// violation: these are bugs in the simulator, not recoverable runtime
// conditions.
func validateBlock(block *Block, pastBlocks []*Block) {
	for shardID, chunk := range block.Chunks {
		if chunk == nil {
			continue
		}
		if chunk.PrevIncomingReceiptsSize < 0 {
			panic(fmt.Sprintf("bandsim: negative incoming receipts size on shard %s", shardID))
		}
		for to, size := range chunk.PrevOutgoingReceiptsSize {
			if size < 0 {
				panic(fmt.Sprintf("bandsim: negative outgoing receipts size on link %s", (ShardLink{From: shardID, To: to})))
			}
		}
	}
}

// validateGrants checks that every granted amount is non-negative and that
// no shard's combined outgoing or incoming grants exceed MaxShardBandwidth.
// A correct BandwidthScheduler can never violate this; a violation here
// means §4.4's or §4.5's contract was broken.
func validateGrants(grants map[ShardLink]int) {
	outgoing := make(map[ShardID]int)
	incoming := make(map[ShardID]int)

	for link, grant := range grants {
		if grant < 0 {
			panic(fmt.Sprintf("bandsim: negative grant on link %s", link))
		}
		outgoing[link.From] += grant
		incoming[link.To] += grant
	}

	for shardID, total := range outgoing {
		if total > MaxShardBandwidth {
			panic(fmt.Sprintf("bandsim: shard %s granted %d outgoing bandwidth, over the %d cap", shardID, total, MaxShardBandwidth))
		}
	}
	for shardID, total := range incoming {
		if total > MaxShardBandwidth {
			panic(fmt.Sprintf("bandsim: shard %s granted %d incoming bandwidth, over the %d cap", shardID, total, MaxShardBandwidth))
		}
	}
}

// MaxMinRatio describes the spread between the busiest and idlest shard
// link's total processed bandwidth over a run, among links that processed
// anything at all.
type MaxMinRatio struct {
	Max, Min int
	Ratio    float64
}

// BandwidthUtilization describes how much of the theoretically available
// bandwidth was actually granted over a run.
type BandwidthUtilization struct {
	Granted, Available int
	Utilization         float64
}

// TestStats summarizes a finished SimulationRun for use in fairness and
// utilization assertions. Constructing one requires a SimulationRun rather
// than a bare Simulation, so stats can never be computed against a
// simulation that hasn't actually been run.
type TestStats struct {
	MaxMinRatio          MaxMinRatio
	BandwidthUtilization BandwidthUtilization
	MissingChunksRatio   float64
	MissingBlocksRatio   float64
}

// NewTestStats computes aggregate statistics over every height of run.
func NewTestStats(run *SimulationRun) *TestStats {
	sim := run.Simulation

	// Per-link processed bytes: the actual receipts a link drained, as
	// recorded permanently in each chunk. Only links that ever processed
	// something count toward the fairness ratio; a link nobody ever sent on
	// isn't part of the "reference set" being compared.
	processed := make(map[ShardLink]int)
	var totalAvailable, totalGranted int
	var missingBlocks, missingChunks, totalChunkSlots int

	for i, block := range sim.Blocks {
		if i == 0 {
			continue
		}
		if block == nil {
			missingBlocks++
			continue
		}
		for _, shardID := range block.SortedShardIDs() {
			totalChunkSlots++
			chunk := block.Chunks[shardID]
			if chunk == nil {
				missingChunks++
				continue
			}
			for to, size := range chunk.PrevOutgoingReceiptsSize {
				if size > 0 {
					processed[ShardLink{From: shardID, To: to}] += size
				}
			}
		}
	}

	for _, shard := range sim.Shards {
		for _, grant := range shard.cumulativeGrants {
			totalGranted += grant
		}
	}

	numShards := len(sim.Shards)
	numHeights := 0
	if len(sim.Blocks) > 1 {
		numHeights = len(sim.Blocks) - 1
	}
	if numShards > 0 {
		totalAvailable = numShards * MaxShardBandwidth * numHeights
	}

	maxGrant, minGrant := 0, 0
	first := true
	for _, total := range processed {
		if first {
			maxGrant, minGrant = total, total
			first = false
			continue
		}
		if total > maxGrant {
			maxGrant = total
		}
		if total < minGrant {
			minGrant = total
		}
	}

	ratio := 1.0
	if minGrant > 0 {
		ratio = float64(maxGrant) / float64(minGrant)
	} else if maxGrant > 0 {
		ratio = float64(maxGrant)
	}

	utilization := 0.0
	if totalAvailable > 0 {
		utilization = float64(totalGranted) / float64(totalAvailable)
	}

	missingChunksRatio := 0.0
	if totalChunkSlots > 0 {
		missingChunksRatio = float64(missingChunks) / float64(totalChunkSlots)
	}

	missingBlocksRatio := 0.0
	if len(sim.Blocks) > 1 {
		missingBlocksRatio = float64(missingBlocks) / float64(len(sim.Blocks)-1)
	}

	return &TestStats{
		MaxMinRatio: MaxMinRatio{Max: maxGrant, Min: minGrant, Ratio: ratio},
		BandwidthUtilization: BandwidthUtilization{
			Granted:     totalGranted,
			Available:   totalAvailable,
			Utilization: utilization,
		},
		MissingChunksRatio: missingChunksRatio,
		MissingBlocksRatio: missingBlocksRatio,
	}
}

// BasicAssert panics if any sanity-check invariant on the stats is
// violated: a max/min ratio of at least 1.0 whenever any link processed
// bytes, and a utilization and missing-chunks ratio within [0, 1].
func (s *TestStats) BasicAssert() {
	if s.MaxMinRatio.Ratio < 1.0 && s.MaxMinRatio.Max != 0 {
		panic(fmt.Sprintf("bandsim: max/min ratio %f is below 1.0", s.MaxMinRatio.Ratio))
	}
	if s.BandwidthUtilization.Utilization < 0 || s.BandwidthUtilization.Utilization > 1 {
		panic(fmt.Sprintf("bandsim: bandwidth utilization %f out of range", s.BandwidthUtilization.Utilization))
	}
	if s.MissingChunksRatio < 0 || s.MissingChunksRatio > 1 {
		panic(fmt.Sprintf("bandsim: missing chunks ratio %f out of range", s.MissingChunksRatio))
	}
}
