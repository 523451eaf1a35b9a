package core

import "math/rand"

// ReceiptSender is a pluggable capability that refills an OutgoingQueue each
// height. Modeled as a small interface rather than a sum type: Go has no
// tagged unions, and an interface with a handful of concrete implementations
// is the idiomatic equivalent (§9's "dynamic dispatch" design note).
type ReceiptSender interface {
	SendReceipts(queue *OutgoingQueue, rng *rand.Rand)
}

// NoReceiptSender never adds receipts to the queue.
type NoReceiptSender struct{}

func (NoReceiptSender) SendReceipts(*OutgoingQueue, *rand.Rand) {}

// ReceiptSizeGenerator produces one receipt size per call.
type ReceiptSizeGenerator interface {
	NextSize(rng *rand.Rand) int
}

// OneSizeReceiptGenerator always returns the same size.
type OneSizeReceiptGenerator struct {
	Size int
}

func (g OneSizeReceiptGenerator) NextSize(*rand.Rand) int { return g.Size }

// RandomSizeReceiptGenerator draws a uniform size from [Min, Max].
type RandomSizeReceiptGenerator struct {
	Min, Max int
}

func (g RandomSizeReceiptGenerator) NextSize(rng *rand.Rand) int {
	if g.Max <= g.Min {
		return g.Min
	}
	return g.Min + rng.Intn(g.Max-g.Min+1)
}

// TypicalReceiptGenerator produces a small-biased mixture of receipt sizes:
// mostly small receipts, occasionally a larger one, matching real-world
// cross-shard traffic shape.
type TypicalReceiptGenerator struct{}

// NewTypicalReceiptGenerator returns a TypicalReceiptGenerator.
func NewTypicalReceiptGenerator() TypicalReceiptGenerator {
	return TypicalReceiptGenerator{}
}

func (TypicalReceiptGenerator) NextSize(rng *rand.Rand) int {
	// 80% small receipts close to the minimum size, 15% medium, 5% large,
	// all bounded to [MinReceiptSize, MaxReceiptSize].
	roll := rng.Float64()
	switch {
	case roll < 0.80:
		return MinReceiptSize + rng.Intn(5_000)
	case roll < 0.95:
		return 50_000 + rng.Intn(200_000)
	default:
		return MaxReceiptSize/2 + rng.Intn(MaxReceiptSize/2)
	}
}

// FullSpeedReceiptSender keeps pushing receipts from Generator into the
// queue while the queue's total size is below MaxShardBandwidth.
type FullSpeedReceiptSender struct {
	Generator ReceiptSizeGenerator
}

func (s FullSpeedReceiptSender) SendReceipts(queue *OutgoingQueue, rng *rand.Rand) {
	for queue.TotalSize() < MaxShardBandwidth {
		size := s.Generator.NextSize(rng)
		if size < MinReceiptSize {
			size = MinReceiptSize
		}
		if size > MaxReceiptSize {
			size = MaxReceiptSize
		}
		queue.Push(Receipt{Size: size})
	}
}
