package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const defaultTestLength = 1000

func noSenderFactory(*rand.Rand) ReceiptSender { return NoReceiptSender{} }

// Scenario 1: a max-size full-speed sender racing a min-size full-speed
// sender out of the same shard should still end up close to evenly matched,
// and the link should be saturated.
func TestScenarioMaxVsMinSizeSameShard(t *testing.T) {
	run := NewSimulationBuilder(2).
		RandomSeed(0).
		ReceiptSender(0, 0, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxReceiptSize}}).
		ReceiptSender(0, 1, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MinReceiptSize}}).
		DefaultSenderFactory(noSenderFactory).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.LessOrEqual(t, stats.MaxMinRatio.Ratio, 1.25)
	require.Greater(t, stats.BandwidthUtilization.Utilization, 0.90)
}

// Scenario 2: same shape but the min-size sender goes the other direction.
func TestScenarioMaxVsMinSizeCrossShard(t *testing.T) {
	run := NewSimulationBuilder(2).
		RandomSeed(0).
		ReceiptSender(0, 0, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxReceiptSize}}).
		ReceiptSender(1, 0, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MinReceiptSize}}).
		DefaultSenderFactory(noSenderFactory).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.LessOrEqual(t, stats.MaxMinRatio.Ratio, 1.25)
	require.Greater(t, stats.BandwidthUtilization.Utilization, 0.90)
}

// Scenario 3: one big sender competing against several small senders out of
// the same shard should still be fair across all of its outgoing links.
func TestScenarioBigVsManySmall(t *testing.T) {
	builder := NewSimulationBuilder(5).
		RandomSeed(0).
		ReceiptSender(0, 0, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxReceiptSize}}).
		DefaultSenderFactory(noSenderFactory)
	for to := 1; to <= 4; to++ {
		builder = builder.ReceiptSender(0, to, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MinReceiptSize}})
	}

	run := builder.Build().RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.LessOrEqual(t, stats.MaxMinRatio.Ratio, 1.15)
	require.Greater(t, stats.BandwidthUtilization.Utilization, 0.90)
}

// Scenario 4: a single medium-size sender only fits one receipt per height,
// so overall utilization should stay low.
func TestScenarioMediumSenderLowUtilization(t *testing.T) {
	run := NewSimulationBuilder(2).
		RandomSeed(0).
		ReceiptSender(0, 0, FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxShardBandwidth/2 + 100}}).
		DefaultSenderFactory(noSenderFactory).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.LessOrEqual(t, stats.BandwidthUtilization.Utilization, 0.60)
}

// Scenario 5: typical cross-shard traffic with light missing blocks and
// chunks should still be fair and reasonably well utilized.
func TestScenarioTypicalWithMissingData(t *testing.T) {
	run := NewSimulationBuilder(6).
		RandomSeed(0).
		DefaultSenderFactory(func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: NewTypicalReceiptGenerator()}
		}).
		MissingBlockProbability(0.05).
		MissingChunkGenerator(func(_ uint64, _ ShardID, rng *rand.Rand) bool {
			return rng.Float64() < 0.05
		}).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.LessOrEqual(t, stats.MaxMinRatio.Ratio, 1.20)
	require.Greater(t, stats.BandwidthUtilization.Utilization, 0.75)
}

// Scenario 6: a higher missing-chunk rate should be reflected accurately in
// MissingChunksRatio.
func TestScenarioMissingChunksRatio(t *testing.T) {
	run := NewSimulationBuilder(6).
		RandomSeed(0).
		DefaultSenderFactory(func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: NewTypicalReceiptGenerator()}
		}).
		MissingChunkGenerator(func(_ uint64, _ ShardID, rng *rand.Rand) bool {
			return rng.Float64() < 0.10
		}).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
	require.Greater(t, stats.MissingChunksRatio, 0.08)
	require.Less(t, stats.MissingChunksRatio, 0.12)
}

func TestRandomSizeSendersScenarioDoesNotPanic(t *testing.T) {
	run := NewSimulationBuilder(6).
		RandomSeed(0).
		DefaultSenderFactory(func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: RandomSizeReceiptGenerator{Min: MinReceiptSize, Max: MaxReceiptSize}}
		}).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
}

func TestRandomizedScenariosDoNotPanic(t *testing.T) {
	const maxShards = 16
	factories := []func(*rand.Rand) ReceiptSender{
		func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MinReceiptSize}}
		},
		func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxShardBandwidth/2 + 100}}
		},
		func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: OneSizeReceiptGenerator{Size: MaxReceiptSize}}
		},
		func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: RandomSizeReceiptGenerator{Min: MinReceiptSize, Max: MaxReceiptSize}}
		},
		func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: NewTypicalReceiptGenerator()}
		},
	}

	for seed := uint64(0); seed < 10; seed++ {
		seedRng := RngFromSeed(seed)
		numShards := 1 + seedRng.Intn(maxShards)

		run := NewSimulationBuilder(numShards).
			RandomSeed(seed).
			DefaultSenderFactory(func(rng *rand.Rand) ReceiptSender {
				return factories[rng.Intn(len(factories))](rng)
			}).
			Build().
			RunFor(defaultTestLength)

		stats := NewTestStats(run)
		stats.BasicAssert()
	}
}

// Regression test for a bug where MaxShardBandwidth - numShards*baseBandwidth
// was smaller than the bandwidth option corresponding to a max-size receipt.
func TestRandomizedScenarioRegressionBug1(t *testing.T) {
	run := NewSimulationBuilder(10).
		RandomSeed(13419).
		DefaultSenderFactory(func(*rand.Rand) ReceiptSender {
			return FullSpeedReceiptSender{Generator: RandomSizeReceiptGenerator{Min: MinReceiptSize, Max: MaxReceiptSize}}
		}).
		Build().
		RunFor(defaultTestLength)

	stats := NewTestStats(run)
	stats.BasicAssert()
}
