package vfo

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Reading is one completed gate cycle as seen by the tracker.
type Reading struct {
	Count       uint32    `json:"count"`
	Hz          float64   `json:"hz"`
	Tracking    bool      `json:"tracking"`
	Locked      bool      `json:"locked"`
	CommandedHz uint32    `json:"commanded_hz"`
	Ratio       float64   `json:"ratio"`
	Time        time.Time `json:"time"`
}

type calRequest struct {
	referenceHz float64
	reply       chan CalResult
}

// Tracker owns the control loop: it consumes one gated count per interval,
// resolves it to a frequency and applies the mode table.
//
// Tracking and Locked are independent flags. Tracking follows the sensed
// control line each cycle; Locked is a user toggle. Tracking and unlocked
// commands the synthesizer every gate; locked holds the last command while
// counting continues; holding (not tracking) moves only on explicit step
// actions.
type Tracker struct {
	gate    *Gate
	synth   *Synth
	panel   PanelIO
	cal     *Calibrator
	metrics *Metrics

	initialHz uint32

	mu         sync.Mutex
	ratio      float64
	scale      float64
	tracking   bool
	locked     bool
	lastButton ButtonAction
	last       Reading

	calReqs chan calRequest

	subMu   sync.Mutex
	subs    map[int]chan Reading
	nextSub int
}

// NewTracker wires the control loop. initialHz, when non-zero, is
// commanded once at startup so the synthesizer output is defined before
// the first gate completes.
func NewTracker(gate *Gate, synth *Synth, panel PanelIO, cal *Calibrator, metrics *Metrics, initialHz uint32) *Tracker {
	return &Tracker{
		gate:      gate,
		synth:     synth,
		panel:     panel,
		cal:       cal,
		metrics:   metrics,
		initialHz: initialHz,
		ratio:     1.0,
		scale:     NominalScale(),
		calReqs:   make(chan calRequest),
		subs:      make(map[int]chan Reading),
	}
}

// SetRatio applies a calibration ratio, recomputing the scale factor.
func (t *Tracker) SetRatio(ratio float64) {
	t.mu.Lock()
	t.ratio = ratio
	t.scale = ScaleFor(ratio)
	t.mu.Unlock()
	t.metrics.SetRatio(ratio)
}

// Ratio returns the calibration ratio in effect.
func (t *Tracker) Ratio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratio
}

// Scale returns the scale factor in effect.
func (t *Tracker) Scale() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scale
}

// Locked reports the lock flag.
func (t *Tracker) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

// ToggleLock flips the lock flag and returns the new state.
func (t *Tracker) ToggleLock() bool {
	t.mu.Lock()
	t.locked = !t.locked
	locked := t.locked
	t.mu.Unlock()
	slog.Info("Lock toggled", "locked", locked)
	return locked
}

// SetLocked forces the lock flag, used after an accepted calibration so
// the reference signal still wired to the input is not tracked as a live
// VFO.
func (t *Tracker) SetLocked(locked bool) {
	t.mu.Lock()
	t.locked = locked
	t.mu.Unlock()
}

// Status returns the most recent reading with the current flags folded in.
func (t *Tracker) Status() Reading {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.last
	r.Tracking = t.tracking
	r.Locked = t.locked
	r.Ratio = t.ratio
	r.CommandedHz = t.synth.LastFrequency()
	return r
}

// StepUp applies one panel-up action. The dial direction is inverted by
// the mixer injection side: up lowers the commanded frequency.
func (t *Tracker) StepUp() {
	t.step(-TuneStepHz)
}

// StepDown applies one panel-down action.
func (t *Tracker) StepDown() {
	t.step(+TuneStepHz)
}

func (t *Tracker) step(deltaHz int) {
	base := t.synth.LastFrequency()
	if base == 0 {
		base = t.initialHz
	}
	target := int64(base) + int64(deltaHz)
	if target < 0 {
		target = 0
	}
	t.command(uint32(target))
}

func (t *Tracker) command(freqHz uint32) {
	if err := t.synth.SetFrequency(freqHz); err != nil {
		slog.Warn("Synthesizer command rejected", "frequency_hz", freqHz, "error", err)
		t.metrics.IncRejected()
		return
	}
	t.metrics.SetCommanded(freqHz)
}

// Run drives the control loop until the context is cancelled. Exactly one
// Run per tracker; it is the sole consumer of the gate.
func (t *Tracker) Run(ctx context.Context) {
	if t.initialHz > 0 {
		t.command(t.initialHz)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.calReqs:
			t.serveCalibration(ctx, req)
		case count := <-t.gate.Completed():
			t.cycle(count)
		}
	}
}

func (t *Tracker) cycle(count GatedCount) {
	sensed, err := t.panel.TrackingActive()
	if err != nil {
		slog.Warn("Tracking sense read failed", "error", err)
	}
	button, berr := t.panel.ReadButton()
	if berr != nil {
		slog.Warn("Button read failed", "error", berr)
		button = ButtonNone
	}

	t.mu.Lock()
	if err == nil {
		t.tracking = sensed
	}
	tracking := t.tracking
	// The lock button toggles once per press; up/down repeat while held.
	lockEdge := button == ButtonLock && t.lastButton != ButtonLock
	t.lastButton = button
	scale := t.scale
	ratio := t.ratio
	t.mu.Unlock()

	locked := t.Locked()
	if lockEdge {
		locked = t.ToggleLock()
	}

	hz := Resolve(count, scale)

	switch {
	case tracking && !locked:
		t.command(uint32(math.Round(hz)))
	case !tracking:
		switch button {
		case ButtonUp:
			t.StepUp()
		case ButtonDown:
			t.StepDown()
		}
	}

	if err := t.panel.SetTrackingLED(tracking); err != nil {
		slog.Debug("Tracking LED update failed", "error", err)
	}
	if err := t.panel.SetLockLED(locked); err != nil {
		slog.Debug("Lock LED update failed", "error", err)
	}

	reading := Reading{
		Count:       uint32(count),
		Hz:          hz,
		Tracking:    tracking,
		Locked:      locked,
		CommandedHz: t.synth.LastFrequency(),
		Ratio:       ratio,
		Time:        time.Now(),
	}

	t.mu.Lock()
	t.last = reading
	t.mu.Unlock()

	t.metrics.ObserveGate(uint32(count), hz)
	t.publish(reading)
}

func (t *Tracker) serveCalibration(ctx context.Context, req calRequest) {
	next := func() GatedCount {
		select {
		case count := <-t.gate.Completed():
			return count
		case <-ctx.Done():
			// Feeds zeros; the resulting ratio fails the range check
			// and nothing is persisted.
			return 0
		}
	}

	res, err := t.cal.Run(req.referenceHz, t.Scale(), next)
	if err != nil {
		slog.Error("Calibration persistence failed", "run_id", res.RunID, "error", err)
	}
	if res.Accepted {
		t.SetRatio(res.Ratio)
		t.SetLocked(true)
	}
	req.reply <- res
}

// RequestCalibration hands the gate to the calibration engine for one run
// and blocks for the result. Normal tracking is suspended for the
// duration; an accepted run applies and persists the ratio and leaves the
// output locked.
func (t *Tracker) RequestCalibration(ctx context.Context, referenceHz float64) (CalResult, error) {
	req := calRequest{referenceHz: referenceHz, reply: make(chan CalResult, 1)}
	select {
	case t.calReqs <- req:
	case <-ctx.Done():
		return CalResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return CalResult{}, ctx.Err()
	}
}

// Subscribe registers a listener for per-gate readings. Slow listeners
// miss readings rather than stalling the loop. The returned cancel
// function must be called exactly once.
func (t *Tracker) Subscribe() (<-chan Reading, func()) {
	ch := make(chan Reading, 8)
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.subMu.Unlock()

	cancel := func() {
		t.subMu.Lock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
		t.subMu.Unlock()
	}
	return ch, cancel
}

func (t *Tracker) publish(r Reading) {
	t.subMu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- r:
		default:
		}
	}
	t.subMu.Unlock()
}
