package core

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// OutgoingQueue is a per-destination FIFO of receipts with a cached running
// total size.
type OutgoingQueue struct {
	toShard  ShardID
	receipts []Receipt
	total    int
}

// NewOutgoingQueue returns an empty queue bound to toShard.
func NewOutgoingQueue(toShard ShardID) *OutgoingQueue {
	return &OutgoingQueue{toShard: toShard}
}

// Push appends a receipt to the back of the queue.
func (q *OutgoingQueue) Push(r Receipt) {
	q.receipts = append(q.receipts, r)
	q.total += r.Size
}

// Pop removes and returns the front receipt, or (Receipt{}, false) if empty.
func (q *OutgoingQueue) Pop() (Receipt, bool) {
	if len(q.receipts) == 0 {
		return Receipt{}, false
	}
	r := q.receipts[0]
	q.receipts = q.receipts[1:]
	q.total -= r.Size
	return r, true
}

// FirstReceiptSize returns the size of the front receipt, or (0, false) if
// the queue is empty.
func (q *OutgoingQueue) FirstReceiptSize() (int, bool) {
	if len(q.receipts) == 0 {
		return 0, false
	}
	return q.receipts[0].Size, true
}

// TotalSize returns the cached sum of all queued receipt sizes.
func (q *OutgoingQueue) TotalSize() int {
	return q.total
}

// IsEmpty reports whether the queue has no pending receipts.
func (q *OutgoingQueue) IsEmpty() bool {
	return len(q.receipts) == 0
}

// MakeBandwidthRequest encodes the queue's current contents into a
// BandwidthRequest against this shard's base bandwidth, or nil if the queue
// doesn't need more than base.
func (q *OutgoingQueue) MakeBandwidthRequest(baseBandwidth int) *BandwidthRequest {
	sizes := make([]int, len(q.receipts))
	for i, r := range q.receipts {
		sizes[i] = r.Size
	}
	return BandwidthRequestFromReceiptSizes(q.toShard, sizes, baseBandwidth, MaxShardBandwidth)
}

// Shard owns one OutgoingQueue per destination, one BandwidthScheduler, a
// ReceiptSender per destination, and the grants from the most recent height.
type Shard struct {
	ID               ShardID
	scheduler        *BandwidthScheduler
	latestGrants     map[ShardLink]int
	cumulativeGrants map[ShardLink]int
	outgoingQueues   map[ShardID]*OutgoingQueue
	receiptSenders   map[ShardID]ReceiptSender
}

func newShard(id ShardID, shardIDs []ShardID, senders map[ShardID]ReceiptSender) *Shard {
	queues := make(map[ShardID]*OutgoingQueue, len(shardIDs))
	shardSenders := make(map[ShardID]ReceiptSender)
	for _, to := range shardIDs {
		queues[to] = NewOutgoingQueue(to)
		if sender, ok := senders[to]; ok {
			shardSenders[to] = sender
		}
	}
	return &Shard{
		ID:               id,
		scheduler:        NewBandwidthScheduler(),
		latestGrants:     make(map[ShardLink]int),
		cumulativeGrants: make(map[ShardLink]int),
		outgoingQueues:   queues,
		receiptSenders:   shardSenders,
	}
}

// lastNonMissingBlock walks pastBlocks in reverse to find the most recent
// present block. Panics if every block is missing, which cannot happen past
// genesis since genesis is always present.
func lastNonMissingBlock(pastBlocks []*Block) *Block {
	for i := len(pastBlocks) - 1; i >= 0; i-- {
		if pastBlocks[i] != nil {
			return pastBlocks[i]
		}
	}
	panic("bandsim: all blocks are missing")
}

// nextHeight advances the scheduler's persistent state. This runs on every
// height with a non-missing block, even when this shard's own chunk is
// missing, because every shard's BandwidthScheduler must stay bit-identical.
func (s *Shard) nextHeight(pastBlocks []*Block) {
	lastBlock := lastNonMissingBlock(pastBlocks)
	rng := RngFromSeed(lastBlock.Height)
	s.latestGrants = s.scheduler.Run(lastBlock, rng)
	validateGrants(s.latestGrants)
	for link, grant := range s.latestGrants {
		s.cumulativeGrants[link] += grant
	}
}

// applyAndProduceChunk drains queues using the latest grants, refills them
// via the receipt senders, and emits the Chunk for this height.
func (s *Shard) applyAndProduceChunk(pastBlocks []*Block, rng *rand.Rand) *Chunk {
	incomingReceiptsSize := 0
outer:
	for i := len(pastBlocks) - 1; i >= 0; i-- {
		block := pastBlocks[i]
		if block == nil {
			continue
		}
		thisShardNonMissing := false
		for shardID, chunk := range block.Chunks {
			if shardID == s.ID && chunk != nil {
				thisShardNonMissing = true
			}
			if chunk == nil {
				continue
			}
			incomingReceiptsSize += chunk.PrevOutgoingReceiptsSize[s.ID]
		}
		if thisShardNonMissing {
			break outer
		}
	}

	outgoingReceiptSizes := make(map[ShardID]int)
	for _, to := range sortedShardIDKeys(s.outgoingQueues) {
		queue := s.outgoingQueues[to]
		link := ShardLink{From: s.ID, To: to}
		linkGrant := s.latestGrants[link]
		linkOutgoing := 0
		for !queue.IsEmpty() {
			size, _ := queue.FirstReceiptSize()
			if linkGrant < size {
				break
			}
			r, _ := queue.Pop()
			linkOutgoing += r.Size
			linkGrant -= r.Size
		}
		outgoingReceiptSizes[to] = linkOutgoing
	}

	for _, to := range sortedShardIDKeys(s.receiptSenders) {
		sender := s.receiptSenders[to]
		sender.SendReceipts(s.outgoingQueues[to], rng)
	}

	lastBlock := lastNonMissingBlock(pastBlocks)
	numShards := len(lastBlock.Chunks)
	baseBandwidth := s.scheduler.GetBaseBandwidth(numShards)

	var bandwidthRequests []*BandwidthRequest
	for _, to := range sortedShardIDKeys(s.outgoingQueues) {
		if req := s.outgoingQueues[to].MakeBandwidthRequest(baseBandwidth); req != nil {
			bandwidthRequests = append(bandwidthRequests, req)
		}
	}

	return &Chunk{
		PrevIncomingReceiptsSize: incomingReceiptsSize,
		PrevOutgoingReceiptsSize: outgoingReceiptSizes,
		BandwidthRequests:        bandwidthRequests,
	}
}

// MissingChunkGenerator decides, given a height and shard, whether that
// shard's chunk should be missing at that height.
type MissingChunkGenerator func(height uint64, shard ShardID, rng *rand.Rand) bool

// Simulation drives the blockchain simulation: generates blocks and chunks,
// runs the bandwidth scheduler, and moves receipts between shards.
type Simulation struct {
	Shards                  map[ShardID]*Shard
	Blocks                  []*Block
	rng                     *rand.Rand
	missingBlockProbability float64
	missingChunkGenerator   MissingChunkGenerator
}

// NewSimulation constructs a simulation directly. SimulationBuilder is the
// more convenient entry point for most callers.
func NewSimulation(
	shardIDs []ShardID,
	receiptSenders map[ShardLink]ReceiptSender,
	randomSeed uint64,
	missingBlockProbability float64,
	missingChunkGenerator MissingChunkGenerator,
) *Simulation {
	return newSimulation(shardIDs, receiptSenders, randomSeed, missingBlockProbability, missingChunkGenerator)
}

func newSimulation(
	shardIDs []ShardID,
	receiptSenders map[ShardLink]ReceiptSender,
	randomSeed uint64,
	missingBlockProbability float64,
	missingChunkGenerator MissingChunkGenerator,
) *Simulation {
	rng := RngFromSeed(randomSeed)

	shards := make(map[ShardID]*Shard, len(shardIDs))
	for _, shardID := range shardIDs {
		shardSenders := make(map[ShardID]ReceiptSender)
		for _, to := range shardIDs {
			if sender, ok := receiptSenders[ShardLink{From: shardID, To: to}]; ok {
				shardSenders[to] = sender
			}
		}
		shards[shardID] = newShard(shardID, shardIDs, shardSenders)
	}

	if missingChunkGenerator == nil {
		missingChunkGenerator = func(uint64, ShardID, *rand.Rand) bool { return false }
	}

	sim := &Simulation{
		Shards:                  shards,
		Blocks:                  []*Block{makeGenesisBlock(shardIDs)},
		rng:                     rng,
		missingBlockProbability: missingBlockProbability,
		missingChunkGenerator:   missingChunkGenerator,
	}
	sim.logInfo()
	return sim
}

func makeGenesisBlock(shardIDs []ShardID) *Block {
	genesis := &Block{Height: 0, Chunks: make(map[ShardID]*Chunk)}
	for _, shardID := range shardIDs {
		genesis.Chunks[shardID] = &Chunk{
			PrevOutgoingReceiptsSize: make(map[ShardID]int),
		}
	}
	validateBlock(genesis, nil)
	return genesis
}

func (sim *Simulation) logInfo() {
	logrus.Infof("bandsim: simulation with %d shards", len(sim.Shards))

	senders := make(map[ShardLink]ReceiptSender)
	for from, shard := range sim.Shards {
		for to, sender := range shard.receiptSenders {
			senders[ShardLink{From: from, To: to}] = sender
		}
	}
	for _, link := range sortedShardLinkKeys(senders) {
		logrus.Debugf("bandsim: %s: %T", link, senders[link])
	}
}

// step moves the simulation one block forward.
func (sim *Simulation) step() {
	if sim.rng.Float64() < sim.missingBlockProbability {
		sim.Blocks = append(sim.Blocks, nil)
		return
	}

	newBlock := &Block{Height: uint64(len(sim.Blocks)), Chunks: make(map[ShardID]*Chunk)}

	for _, shardID := range sortedShardIDKeys(sim.Shards) {
		shard := sim.Shards[shardID]
		shard.nextHeight(sim.Blocks)

		if sim.missingChunkGenerator(newBlock.Height, shardID, sim.rng) {
			newBlock.Chunks[shardID] = nil
		} else {
			newBlock.Chunks[shardID] = shard.applyAndProduceChunk(sim.Blocks, sim.rng)
		}
	}

	validateBlock(newBlock, sim.Blocks)

	sim.Blocks = append(sim.Blocks, newBlock)
}

// SimulationRun wraps a Simulation that has finished running, so that
// validation helpers can only be called on a run that actually happened.
type SimulationRun struct {
	Simulation *Simulation
}

// RunFor advances the simulation steps times and returns the finished run.
func (sim *Simulation) RunFor(steps int) *SimulationRun {
	for i := 0; i < steps; i++ {
		sim.step()
	}
	return &SimulationRun{Simulation: sim}
}

// ReceiptSenderFactory builds a new ReceiptSender for a link that wasn't
// given one explicitly, using rng for anything that needs randomness at
// construction time.
type ReceiptSenderFactory func(rng *rand.Rand) ReceiptSender

// SimulationBuilder assembles a Simulation fluently. This is the preferred
// entry point; Simulation itself takes fully-resolved arguments.
type SimulationBuilder struct {
	shards                  []ShardID
	receiptSenders          map[ShardLink]ReceiptSender
	randomSeed              uint64
	defaultSenderFactory    ReceiptSenderFactory
	missingChunkGenerator   MissingChunkGenerator
	missingBlockProbability float64
}

// NewSimulationBuilder starts a builder for a simulation with numShards
// shards, numbered 0..numShards-1.
func NewSimulationBuilder(numShards int) *SimulationBuilder {
	shards := make([]ShardID, numShards)
	for i := range shards {
		shards[i] = ShardID(i)
	}
	return &SimulationBuilder{
		shards:         shards,
		receiptSenders: make(map[ShardLink]ReceiptSender),
	}
}

// ReceiptSender sets the sender used for the from->to link. Panics if a
// sender was already set for this link.
func (b *SimulationBuilder) ReceiptSender(from, to int, sender ReceiptSender) *SimulationBuilder {
	link := ShardLink{From: ShardID(from), To: ShardID(to)}
	if _, ok := b.receiptSenders[link]; ok {
		panic("bandsim: receipt sender already set for " + link.String())
	}
	b.receiptSenders[link] = sender
	return b
}

// RandomSeed sets the simulation's random seed. Build also seeds the rng it
// hands to the default sender factory from this seed.
func (b *SimulationBuilder) RandomSeed(seed uint64) *SimulationBuilder {
	b.randomSeed = seed
	return b
}

// DefaultSenderFactory sets the factory used to create a ReceiptSender for
// every link that wasn't given one explicitly. Panics if already set.
func (b *SimulationBuilder) DefaultSenderFactory(f ReceiptSenderFactory) *SimulationBuilder {
	if b.defaultSenderFactory != nil {
		panic("bandsim: default sender factory already set")
	}
	b.defaultSenderFactory = f
	return b
}

// MissingBlockProbability sets the probability that a given height's block
// is entirely missing.
func (b *SimulationBuilder) MissingBlockProbability(p float64) *SimulationBuilder {
	b.missingBlockProbability = p
	return b
}

// MissingChunkGenerator sets the function deciding, per height and shard,
// whether that shard's chunk is missing.
func (b *SimulationBuilder) MissingChunkGenerator(f MissingChunkGenerator) *SimulationBuilder {
	b.missingChunkGenerator = f
	return b
}

// Build constructs the Simulation.
func (b *SimulationBuilder) Build() *Simulation {
	if b.defaultSenderFactory != nil {
		rng := RngFromSeed(b.randomSeed)
		for _, from := range b.shards {
			for _, to := range b.shards {
				link := ShardLink{From: from, To: to}
				if _, ok := b.receiptSenders[link]; !ok {
					b.receiptSenders[link] = b.defaultSenderFactory(rng)
				}
			}
		}
	}

	return newSimulation(
		b.shards,
		b.receiptSenders,
		b.randomSeed,
		b.missingBlockProbability,
		b.missingChunkGenerator,
	)
}
