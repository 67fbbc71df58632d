package buffer_pool

import (
	"sync"

	"github.com/zhukovaskychina/xmysql-storage/server/common"
)

// ClockReplacer picks eviction victims with the classical second-chance
// policy. A frame becomes a candidate when the pool unpins it; Unpin sets
// its reference bit, so a candidate survives one sweep of the hand before
// it can be chosen. Pin withdraws the frame from the candidate set.
type ClockReplacer struct {
	mu sync.Mutex

	numFrames int
	refBit    []bool
	inClock   []bool
	pointer   int
	size      int
}

// NewClockReplacer creates a replacer for numFrames slots.
func NewClockReplacer(numFrames int) *ClockReplacer {
	return &ClockReplacer{
		numFrames: numFrames,
		refBit:    make([]bool, numFrames),
		inClock:   make([]bool, numFrames),
	}
}

// Victim returns the next eviction victim, removing it from the candidate
// set. The hand examines the slot it points at: a set reference bit is
// cleared and the hand advances; a clear bit on a candidate slot selects
// that slot. Two full sweeps bound the scan.
func (cr *ClockReplacer) Victim() (common.FrameNo, bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.size == 0 {
		return common.INVALID_FRAME_NO, false
	}

	for i := 0; i < 2*cr.numFrames; i++ {
		current := cr.pointer
		cr.pointer = cr.nextSlot(cr.pointer)

		if !cr.inClock[current] {
			continue
		}
		if cr.refBit[current] {
			cr.refBit[current] = false
			continue
		}

		cr.inClock[current] = false
		cr.size--
		return common.FrameNo(current), true
	}

	return common.INVALID_FRAME_NO, false
}

// Pin withdraws a frame from the candidate set.
func (cr *ClockReplacer) Pin(frameNo common.FrameNo) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.inClock[frameNo] {
		cr.inClock[frameNo] = false
		cr.size--
	}
	cr.refBit[frameNo] = false
}

// Unpin adds a frame to the candidate set with its reference bit set.
func (cr *ClockReplacer) Unpin(frameNo common.FrameNo) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.inClock[frameNo] {
		cr.inClock[frameNo] = true
		cr.size++
	}
	cr.refBit[frameNo] = true
}

// Size returns the number of candidate frames.
func (cr *ClockReplacer) Size() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.size
}

func (cr *ClockReplacer) nextSlot(slot int) int {
	return (slot + 1) % cr.numFrames
}
