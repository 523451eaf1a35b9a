package core

import (
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Errors recoverable and fatal error taxonomy per §7. ErrNotEnoughBandwidth
// is recovered locally by the caller; the other two indicate a bug and
// should be treated as fatal by anything that sees them.
var (
	ErrNotEnoughBandwidth = errors.New("bandwidth scheduler: not enough bandwidth")
	ErrInvariantViolation = errors.New("bandwidth scheduler: invariant violation")
	ErrIndexOutOfRange    = errors.New("bandwidth scheduler: index out of range")
)

// BandwidthScheduler runs the per-height scheduling algorithm described in
// §4.4 and owns the persistent allowance table that makes it fair across
// heights. Each shard owns its own instance; correctness depends on every
// shard's instance staying bit-identical across heights (§5).
type BandwidthScheduler struct {
	allowances map[ShardLink]int

	// Scratch state, reset at the start of every Run.
	granted        map[ShardLink]int
	incomingLimits map[ShardID]int
	outgoingLimits map[ShardID]int
}

// NewBandwidthScheduler returns a scheduler with an empty allowance table.
func NewBandwidthScheduler() *BandwidthScheduler {
	return &BandwidthScheduler{allowances: make(map[ShardLink]int)}
}

// GetBaseBandwidth returns the bandwidth granted unconditionally to every
// link each height, given numShards shards. See §4.4 Step 2.
func (s *BandwidthScheduler) GetBaseBandwidth(numShards int) int {
	base := (MaxShardBandwidth - MaxReceiptSize) / numShards
	if base > MaxBaseBandwidth {
		base = MaxBaseBandwidth
	}
	return base
}

// Run executes one height of the scheduling algorithm against prevBlock and
// returns the granted bytes per ShardLink. rng must be seeded identically on
// every shard running this height (§4.4's determinism contract).
func (s *BandwidthScheduler) Run(prevBlock *Block, rng *rand.Rand) map[ShardLink]int {
	allShards := prevBlock.SortedShardIDs()
	if len(allShards) == 0 {
		return map[ShardLink]int{}
	}

	s.granted = make(map[ShardLink]int)
	s.incomingLimits = make(map[ShardID]int)
	s.outgoingLimits = make(map[ShardID]int)

	// Step 1: replenish allowance.
	baseBandwidth := s.GetBaseBandwidth(len(allShards))
	allowancePerHeight := MaxShardBandwidth / len(allShards)
	for _, from := range allShards {
		for _, to := range allShards {
			s.addAllowance(ShardLink{From: from, To: to}, allowancePerHeight)
		}
	}

	// Step 3: initialize limits.
	for _, shardID := range allShards {
		s.outgoingLimits[shardID] = MaxShardBandwidth
		if prevBlock.Chunks[shardID] != nil {
			s.incomingLimits[shardID] = MaxShardBandwidth
		} else {
			s.incomingLimits[shardID] = 0
		}
	}

	// Step 4: grant base bandwidth to every link; failures (missing-chunk
	// receivers) are silently skipped.
	for _, from := range allShards {
		for _, to := range allShards {
			link := ShardLink{From: from, To: to}
			if err := s.tryGrantAdditionalBandwidth(link, baseBandwidth); err != nil {
				logrus.Debugf("bandsim: base grant skipped on %s: %v", link, err)
			}
		}
	}

	// Step 5: process bandwidth requests in allowance-priority order.
	requestsByAllowance := make(map[int][]*bandwidthIncreaseRequest)
	for _, shardID := range allShards {
		chunk := prevBlock.Chunks[shardID]
		if chunk == nil {
			continue
		}
		for _, req := range chunk.BandwidthRequests {
			link := ShardLink{From: shardID, To: req.ToShard}
			internal := newBandwidthIncreaseRequest(link, req, baseBandwidth)
			allowance := s.getAllowance(link)
			requestsByAllowance[allowance] = append(requestsByAllowance[allowance], internal)
		}
	}

	for len(requestsByAllowance) > 0 {
		maxAllowance := maxIntKey(requestsByAllowance)
		group := requestsByAllowance[maxAllowance]
		delete(requestsByAllowance, maxAllowance)

		shuffle(rng, group)

		for _, req := range group {
			if len(req.bandwidthIncreases) == 0 {
				continue
			}
			increase := req.bandwidthIncreases[0]
			req.bandwidthIncreases = req.bandwidthIncreases[1:]

			if err := s.tryGrantAdditionalBandwidth(req.shardLink, increase); err != nil {
				logrus.Debugf("bandsim: dropping request on %s: %v", req.shardLink, err)
				continue
			}
			s.decreaseAllowance(req.shardLink, increase)
			newAllowance := s.getAllowance(req.shardLink)
			requestsByAllowance[newAllowance] = append(requestsByAllowance[newAllowance], req)
		}
	}

	// Step 6: distribute remaining bandwidth. These grants must succeed by
	// construction; failure here means §4.5's contract was violated.
	remaining := DistributeRemainingBandwidth(s.outgoingLimits, s.incomingLimits)
	for link, grant := range remaining {
		if err := s.tryGrantAdditionalBandwidth(link, grant); err != nil {
			logrus.Warnf("bandsim: distribute_remaining_bandwidth violated its contract on %s: %v", link, err)
			panic(ErrInvariantViolation)
		}
	}

	result := s.granted
	s.granted = nil
	s.incomingLimits = nil
	s.outgoingLimits = nil
	return result
}

func (s *BandwidthScheduler) tryGrantAdditionalBandwidth(link ShardLink, increase int) error {
	outgoing := s.outgoingLimits[link.From]
	incoming := s.incomingLimits[link.To]

	if increase > outgoing || increase > incoming {
		return ErrNotEnoughBandwidth
	}

	s.granted[link] += increase
	s.outgoingLimits[link.From] = outgoing - increase
	s.incomingLimits[link.To] = incoming - increase
	return nil
}

func (s *BandwidthScheduler) getAllowance(link ShardLink) int {
	return s.allowances[link]
}

func (s *BandwidthScheduler) addAllowance(link ShardLink, amount int) {
	cur := s.allowances[link] + amount
	if cur > MaxAllowance {
		cur = MaxAllowance
	}
	s.allowances[link] = cur
}

func (s *BandwidthScheduler) decreaseAllowance(link ShardLink, amount int) {
	cur := s.allowances[link] - amount
	if cur < 0 {
		cur = 0
	}
	s.allowances[link] = cur
}

func maxIntKey(m map[int][]*bandwidthIncreaseRequest) int {
	first := true
	best := 0
	for k := range m {
		if first || k > best {
			best = k
			first = false
		}
	}
	return best
}

// bandwidthIncreaseRequest is a BandwidthRequest translated into a queue of
// deltas between consecutive absolute grant options, starting from
// base_bandwidth (§4.4 Step 5).
type bandwidthIncreaseRequest struct {
	shardLink          ShardLink
	bandwidthIncreases []int
}

func newBandwidthIncreaseRequest(link ShardLink, req *BandwidthRequest, baseBandwidth int) *bandwidthIncreaseRequest {
	if link.To != req.ToShard {
		panic(ErrInvariantViolation)
	}

	options := BandwidthRequestOptionsFromBitmap(req.GrantOptionsBitmap, baseBandwidth, MaxShardBandwidth)
	increases := make([]int, 0, len(options))
	lastOption := baseBandwidth
	for _, option := range options {
		if option <= lastOption {
			panic(ErrInvariantViolation)
		}
		increases = append(increases, option-lastOption)
		lastOption = option
	}

	return &bandwidthIncreaseRequest{shardLink: link, bandwidthIncreases: increases}
}
