package vfo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackerFixture struct {
	src   *SimSource
	panel *SimPanel
	port  *NopPort
	synth *Synth
	store *CalStore
	tr    *Tracker
	sub   <-chan Reading
}

func newTrackerFixture(t *testing.T, initialHz uint32) *trackerFixture {
	t.Helper()

	src := NewSimSource(0)
	gate := NewGate(src)
	port := &NopPort{}
	synth := NewSynth(port, DefaultSynthClockHz, DefaultFreqMinHz, DefaultFreqMaxHz)
	panel := NewSimPanel()
	store := tempStore(t)
	tr := NewTracker(gate, synth, panel, NewCalibrator(store), nil, initialHz)

	sub, cancelSub := tr.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)
	t.Cleanup(func() {
		cancel()
		cancelSub()
	})

	return &trackerFixture{src: src, panel: panel, port: port, synth: synth, store: store, tr: tr, sub: sub}
}

// cycle feeds one full gate interval and waits for the tracker to process it.
func (f *trackerFixture) cycle(t *testing.T, edges int) Reading {
	t.Helper()
	feedCycle(f.src, edges)
	select {
	case r := <-f.sub:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not process the gate interval")
		return Reading{}
	}
}

func TestTrackerInitialCommand(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)

	r := f.cycle(t, 0)
	assert.Equal(t, uint32(5_200_000), r.CommandedHz)
	assert.Equal(t, uint32(5_200_000), f.synth.LastFrequency())
}

func TestTrackerTrackingCommandsMeasuredFrequency(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)
	f.panel.SetTracking(true)

	const edges = 511200
	r := f.cycle(t, edges)

	expected := uint32(math.Round(Resolve(GatedCount(edges), NominalScale())))
	assert.True(t, r.Tracking)
	assert.False(t, r.Locked)
	assert.Equal(t, uint32(edges), r.Count)
	assert.Equal(t, expected, r.CommandedHz)
	assert.Equal(t, expected, f.synth.LastFrequency())
}

func TestTrackerLockedHoldsCommand(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)
	f.panel.SetTracking(true)
	f.tr.SetLocked(true)

	r := f.cycle(t, 511200)

	assert.True(t, r.Tracking)
	assert.True(t, r.Locked)
	assert.Equal(t, uint32(5_200_000), r.CommandedHz, "locked output must not follow the input")
	assert.InDelta(t, Resolve(511200, NominalScale()), r.Hz, 1e-6, "counting continues while locked")
}

func TestTrackerOutOfBandNeverCommanded(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)
	f.panel.SetTracking(true)

	// Resolves to roughly 1 MHz, far below the permitted band.
	r := f.cycle(t, 100000)

	assert.Equal(t, uint32(5_200_000), r.CommandedHz, "rejected command leaves the previous output")
	assert.Equal(t, uint32(5_200_000), f.synth.LastFrequency())
}

func TestTrackerHoldingStepsInverted(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)

	// Holding mode: the output moves only on button actions, and the dial
	// sense is inverted.
	f.panel.Press(ButtonUp)
	r := f.cycle(t, 511200)
	assert.False(t, r.Tracking)
	assert.Equal(t, uint32(5_199_995), r.CommandedHz)

	f.panel.Press(ButtonUp)
	r = f.cycle(t, 511200)
	assert.Equal(t, uint32(5_199_990), r.CommandedHz, "held buttons repeat each gate")

	f.panel.Press(ButtonDown)
	r = f.cycle(t, 511200)
	assert.Equal(t, uint32(5_199_995), r.CommandedHz)

	r = f.cycle(t, 511200)
	assert.Equal(t, uint32(5_199_995), r.CommandedHz, "no button, no movement")
}

func TestTrackerLockButtonTogglesOncePerPress(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)

	f.panel.Press(ButtonLock)
	f.panel.Press(ButtonLock)

	r := f.cycle(t, 0)
	assert.True(t, r.Locked, "first lock reading toggles")

	r = f.cycle(t, 0)
	assert.True(t, r.Locked, "held lock button must not toggle again")

	r = f.cycle(t, 0)
	assert.True(t, r.Locked, "released button changes nothing")

	f.panel.Press(ButtonLock)
	r = f.cycle(t, 0)
	assert.False(t, r.Locked, "next press toggles back")
}

func TestTrackerStepBelowBandRejected(t *testing.T) {
	port := &NopPort{}
	synth := NewSynth(port, DefaultSynthClockHz, DefaultFreqMinHz, DefaultFreqMaxHz)
	tr := NewTracker(nil, synth, NewSimPanel(), nil, nil, 0)

	tr.StepUp()
	assert.Equal(t, uint32(0), synth.LastFrequency())
	_, sent := port.Last()
	assert.False(t, sent)
}

func TestTrackerCalibrationRequest(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)

	const referenceHz = 5_000_000.0
	edges := int(countForRatio(referenceHz, 0.99))

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				feedCycle(f.src, edges)
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()
	defer close(done)

	res, err := f.tr.RequestCalibration(context.Background(), referenceHz)
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.InDelta(t, 0.99, res.Ratio, 1e-3)
	assert.Equal(t, res.Ratio, f.tr.Ratio())
	assert.True(t, f.tr.Locked(), "accepted calibration leaves the output locked")

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, res.Ratio, stored)
}

func TestTrackerCalibrationCancelled(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.tr.RequestCalibration(ctx, 5_000_000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrackerStatusReflectsFlags(t *testing.T) {
	f := newTrackerFixture(t, 5_200_000)
	f.panel.SetTracking(true)

	f.cycle(t, 511200)
	f.tr.SetLocked(true)

	status := f.tr.Status()
	assert.True(t, status.Locked)
	assert.True(t, status.Tracking)
	assert.Equal(t, 1.0, status.Ratio)
	assert.NotZero(t, status.CommandedHz)
}
