package core

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// BandwidthRequestValues is the deterministic, strictly increasing ladder of
// BandwidthRequestValuesNum candidate grant sizes derived from a given
// (base_bandwidth, max_bandwidth) pair. See §4.1.
type BandwidthRequestValues [BandwidthRequestValuesNum]int

// newBandwidthRequestValues builds the ladder for a given base bandwidth.
// max_bandwidth is always MaxShardBandwidth in this system, but is threaded
// through explicitly to mirror the original algorithm's signature.
func newBandwidthRequestValues(baseBandwidth, maxBandwidth int) BandwidthRequestValues {
	var values BandwidthRequestValues
	n := len(values)
	for i := 0; i < n; i++ {
		values[i] = baseBandwidth + (maxBandwidth-baseBandwidth)*(i+1)/n
	}

	// The value closest to MaxReceiptSize is snapped to MaxReceiptSize so
	// that a maximum-size receipt always has a rung that covers it.
	closest := 0
	for _, v := range values {
		if absDiff(v, MaxReceiptSize) < absDiff(closest, MaxReceiptSize) {
			closest = v
		}
	}
	for i, v := range values {
		if v == closest {
			values[i] = MaxReceiptSize
		}
	}

	for i := 1; i < n; i++ {
		if values[i-1] >= values[i] {
			panic(fmt.Sprintf("bandwidth request values not sorted: base=%d max=%d values=%v", baseBandwidth, maxBandwidth, values))
		}
	}

	return values
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// BandwidthRequestBitmap is a fixed BandwidthRequestValuesNum-bit field
// selecting which rungs of a BandwidthRequestValues ladder a sender wants.
type BandwidthRequestBitmap struct {
	bits *bitset.BitSet
}

// NewBandwidthRequestBitmap returns an all-clear bitmap.
func NewBandwidthRequestBitmap() *BandwidthRequestBitmap {
	return &BandwidthRequestBitmap{bits: bitset.New(BandwidthRequestValuesNum)}
}

// Len returns the fixed bitmap width, BandwidthRequestValuesNum.
func (b *BandwidthRequestBitmap) Len() int {
	return BandwidthRequestValuesNum
}

// SetBit sets or clears bit index. It panics if index is out of range — an
// out-of-bounds index is a caller precondition violation (§7).
func (b *BandwidthRequestBitmap) SetBit(index int, value bool) {
	if index < 0 || index >= BandwidthRequestValuesNum {
		panic(fmt.Errorf("%w: bitmap index %d", ErrIndexOutOfRange, index))
	}
	b.bits.SetTo(uint(index), value)
}

// GetBit returns whether bit index is set. It panics if index is out of
// range.
func (b *BandwidthRequestBitmap) GetBit(index int) bool {
	if index < 0 || index >= BandwidthRequestValuesNum {
		panic(fmt.Errorf("%w: bitmap index %d", ErrIndexOutOfRange, index))
	}
	return b.bits.Test(uint(index))
}

// IsAllFalse reports whether every bit is clear.
func (b *BandwidthRequestBitmap) IsAllFalse() bool {
	return b.bits.None()
}

// BandwidthRequest is a sender's compressed wish-list for one destination
// shard: the set of ladder rungs under which some prefix of its outgoing
// queue would fit.
type BandwidthRequest struct {
	ToShard            ShardID
	GrantOptionsBitmap *BandwidthRequestBitmap
}

// BandwidthRequestFromReceiptSizes encodes an ordered (head-first) sequence
// of pending receipt sizes into a BandwidthRequest, or returns nil if the
// queue's desired transmission never exceeds baseBandwidth. See §4.2.
func BandwidthRequestFromReceiptSizes(toShard ShardID, receiptSizes []int, baseBandwidth, maxBandwidth int) *BandwidthRequest {
	values := newBandwidthRequestValues(baseBandwidth, maxBandwidth)
	bitmap := NewBandwidthRequestBitmap()

	totalSize := 0
	curValue := 0
	for _, size := range receiptSizes {
		totalSize += size

		if totalSize <= baseBandwidth {
			continue
		}

		for curValue < len(values) && values[curValue] < totalSize {
			curValue++
		}

		if curValue == len(values) {
			bitmap.SetBit(bitmap.Len()-1, true)
			break
		}

		bitmap.SetBit(curValue, true)
	}

	if bitmap.IsAllFalse() {
		return nil
	}

	return &BandwidthRequest{ToShard: toShard, GrantOptionsBitmap: bitmap}
}

// BandwidthRequestOptions is the sorted sequence of absolute grant sizes a
// BandwidthRequest's bitmap selects, once decoded against a ladder.
type BandwidthRequestOptions []int

// BandwidthRequestOptionsFromBitmap decodes bitmap against the ladder
// derived from (baseBandwidth, maxBandwidth). Pure inverse of the bit-index
// set built by BandwidthRequestFromReceiptSizes. See §4.3.
func BandwidthRequestOptionsFromBitmap(bitmap *BandwidthRequestBitmap, baseBandwidth, maxBandwidth int) BandwidthRequestOptions {
	values := newBandwidthRequestValues(baseBandwidth, maxBandwidth)
	options := make(BandwidthRequestOptions, 0, bitmap.Len())
	for i := 0; i < bitmap.Len(); i++ {
		if bitmap.GetBit(i) {
			options = append(options, values[i])
		}
	}
	return options
}
