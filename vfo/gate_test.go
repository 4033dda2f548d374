package vfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func feedCycle(src *SimSource, edges int) {
	src.AddEdges(edges)
	for s := 0; s < SegmentsPerGate; s++ {
		src.TickSegment()
	}
}

func TestCombine(t *testing.T) {
	assert.Equal(t, GatedCount(0), Combine(0, 0))
	assert.Equal(t, GatedCount(41248), Combine(0, 41248))
	assert.Equal(t, GatedCount(7<<16|41248), Combine(7, 41248))
	assert.Equal(t, GatedCount(500000), Combine(7, 41248))
	assert.Equal(t, GatedCount(0xFFFFFF), Combine(255, 65535))
}

func TestGateSingleCycle(t *testing.T) {
	src := NewSimSource(0)
	gate := NewGate(src)

	feedCycle(src, 500000)

	assert.Equal(t, GatedCount(500000), gate.Await())
}

func TestGateIncompleteIntervalDoesNotPublish(t *testing.T) {
	src := NewSimSource(0)
	gate := NewGate(src)

	src.AddEdges(1000)
	for s := 0; s < SegmentsPerGate-1; s++ {
		src.TickSegment()
	}

	select {
	case count := <-gate.Completed():
		t.Fatalf("gate published %d before the interval completed", count)
	default:
	}

	src.TickSegment()
	assert.Equal(t, GatedCount(1000), gate.Await())
}

func TestGateNoCarryBetweenCycles(t *testing.T) {
	src := NewSimSource(0)
	gate := NewGate(src)

	feedCycle(src, 500000)
	assert.Equal(t, GatedCount(500000), gate.Await())

	feedCycle(src, 12345)
	assert.Equal(t, GatedCount(12345), gate.Await())

	feedCycle(src, 0)
	assert.Equal(t, GatedCount(0), gate.Await())
}

func TestGateFreshestReadingWins(t *testing.T) {
	src := NewSimSource(0)
	gate := NewGate(src)

	feedCycle(src, 100)
	feedCycle(src, 200)

	// The consumer fell a full interval behind; the stale reading is gone.
	assert.Equal(t, GatedCount(200), gate.Await())
}

func TestGateCountConservation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := NewSimSource(0)
		gate := NewGate(src)

		cycles := rapid.IntRange(1, 5).Draw(rt, "cycles")
		for i := 0; i < cycles; i++ {
			edges := rapid.IntRange(0, 3_000_000).Draw(rt, "edges")
			feedCycle(src, edges)
			got := gate.Await()
			if int(got) != edges {
				rt.Fatalf("cycle %d: fed %d edges, gate reported %d", i, edges, got)
			}
		}
	})
}

func TestGateResolvesKnownFrequency(t *testing.T) {
	src := NewSimSource(0)
	gate := NewGate(src)

	feedCycle(src, 500000)
	count := gate.Await()

	hz := Resolve(count, NominalScale())
	assert.InDelta(t, 500000.0/GateDuration, hz, 1e-6)
	assert.InDelta(t, 5086263.02, hz, 0.01)
}
