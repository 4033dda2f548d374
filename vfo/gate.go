package vfo

import (
	"sync"
)

// GatedCount is the exact number of input edges observed during one full
// gate interval: the overflow accumulator in the high bits, the final
// partial reading of the 16-bit input counter in the low bits.
type GatedCount uint32

// Combine forms a GatedCount from an overflow snapshot and the final
// partial counter reading.
func Combine(overflows uint8, partial uint16) GatedCount {
	return GatedCount(uint32(overflows)<<InputCounterBits | uint32(partial))
}

// Gate coordinates the two timers into one edge count per gate interval.
//
// The input-overflow handler only increments the overflow accumulator. The
// clock-overflow handler counts down the remaining segments; when the last
// segment elapses it snapshots the input counter together with the
// accumulator, clears both, re-arms the segment countdown and publishes the
// combined count. Re-arming happens at the instant the snapshot is taken,
// so edges arriving while a consumer processes the previous reading are
// already accumulating into the next cycle and nothing is lost or counted
// twice.
type Gate struct {
	src TimerSource

	mu           sync.Mutex
	segmentsLeft int
	overflows    uint8

	complete chan GatedCount
}

// NewGate binds a gate to a timer source. The source must not have been
// started yet.
func NewGate(src TimerSource) *Gate {
	g := &Gate{
		src:          src,
		segmentsLeft: SegmentsPerGate,
		complete:     make(chan GatedCount, 1),
	}
	src.Notify(g.onInputOverflow, g.onClockOverflow)
	return g
}

func (g *Gate) onInputOverflow() {
	g.mu.Lock()
	g.overflows++
	g.mu.Unlock()
}

func (g *Gate) onClockOverflow() {
	g.mu.Lock()
	g.segmentsLeft--
	if g.segmentsLeft > 0 {
		g.mu.Unlock()
		return
	}

	partial := g.src.SnapshotAndReset()
	count := Combine(g.overflows, partial)
	g.overflows = 0
	g.segmentsLeft = SegmentsPerGate
	g.mu.Unlock()

	g.publish(count)
}

// publish delivers the freshest reading. If the consumer has fallen a full
// gate behind, the stale value is discarded in favor of the new one; a
// single producer makes the drain-then-send sequence safe.
func (g *Gate) publish(count GatedCount) {
	select {
	case g.complete <- count:
		return
	default:
	}
	select {
	case <-g.complete:
	default:
	}
	select {
	case g.complete <- count:
	default:
	}
}

// Await blocks until the running gate interval completes and returns the
// edge count accumulated over it. It never fails: the gate closes in
// bounded time as long as the reference clock is ticking. If the timer
// path is not running this blocks forever, which is a configuration fault
// rather than a runtime condition.
func (g *Gate) Await() GatedCount {
	return <-g.complete
}

// Completed exposes the completion channel for callers that need to select
// against shutdown. At most one reading is buffered; each value delivered
// is the count of exactly one gate interval.
func (g *Gate) Completed() <-chan GatedCount {
	return g.complete
}
