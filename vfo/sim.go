package vfo

import (
	"fmt"
	"sync"
	"time"
)

// SegmentInterval is the wall-clock duration of one gate segment, the time
// the prescaled reference needs to wrap the 8-bit counter.
const SegmentInterval = 16384 * time.Microsecond

// SimSource models both counters in software. It serves two purposes:
// bench operation without the counting hardware attached (a steady edge
// rate driven by a real-time ticker) and deterministic tests, which drive
// it by hand through AddEdges and TickSegment.
type SimSource struct {
	inputOverflow func()
	clockOverflow func()

	mu   sync.Mutex
	raw  uint32
	frac float64
	rate float64

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewSimSource returns a simulated source producing edgesPerSecond input
// edges once started. A zero rate is valid; the gate then reads zero, the
// same as a dead input signal.
func NewSimSource(edgesPerSecond float64) *SimSource {
	return &SimSource{rate: edgesPerSecond, done: make(chan struct{})}
}

// Notify implements TimerSource.
func (s *SimSource) Notify(inputOverflow, clockOverflow func()) {
	s.inputOverflow = inputOverflow
	s.clockOverflow = clockOverflow
}

// SetRate changes the simulated input frequency.
func (s *SimSource) SetRate(edgesPerSecond float64) {
	s.mu.Lock()
	s.rate = edgesPerSecond
	s.mu.Unlock()
}

// AddEdges feeds n input edges through the simulated 16-bit counter,
// raising one input-overflow notification per wrap. The notifications run
// on the caller's goroutine, outside the source lock.
func (s *SimSource) AddEdges(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.raw += uint32(n)
	wraps := int(s.raw >> InputCounterBits)
	s.raw &= 1<<InputCounterBits - 1
	s.mu.Unlock()

	if s.inputOverflow == nil {
		return
	}
	for i := 0; i < wraps; i++ {
		s.inputOverflow()
	}
}

// TickSegment raises one clock-overflow notification, i.e. advances the
// gate by one segment.
func (s *SimSource) TickSegment() {
	if s.clockOverflow != nil {
		s.clockOverflow()
	}
}

// SnapshotAndReset implements TimerSource.
func (s *SimSource) SnapshotAndReset() uint16 {
	s.mu.Lock()
	v := uint16(s.raw)
	s.raw = 0
	s.mu.Unlock()
	return v
}

// Start begins real-time simulation: every segment interval the configured
// number of edges is injected and one segment elapses.
func (s *SimSource) Start() error {
	if s.clockOverflow == nil {
		return fmt.Errorf("sim source started before Notify")
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *SimSource) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(SegmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			edges := s.rate*SegmentInterval.Seconds() + s.frac
			n := int(edges)
			s.frac = edges - float64(n)
			s.mu.Unlock()

			s.AddEdges(n)
			s.TickSegment()
		}
	}
}

// Close implements TimerSource.
func (s *SimSource) Close() error {
	if s.started {
		close(s.done)
		s.wg.Wait()
		s.started = false
	}
	return nil
}

// SimPanel is an in-memory panel for bench mode and tests.
type SimPanel struct {
	mu       sync.Mutex
	tracking bool
	presses  []ButtonAction
	trackLED bool
	lockLED  bool
}

// NewSimPanel returns a panel reporting the holding state with no buttons
// pressed.
func NewSimPanel() *SimPanel {
	return &SimPanel{}
}

// SetTracking sets the simulated tracking-sense line.
func (p *SimPanel) SetTracking(active bool) {
	p.mu.Lock()
	p.tracking = active
	p.mu.Unlock()
}

// Press queues one button action to be returned by the next ReadButton.
func (p *SimPanel) Press(a ButtonAction) {
	p.mu.Lock()
	p.presses = append(p.presses, a)
	p.mu.Unlock()
}

// TrackingActive implements PanelIO.
func (p *SimPanel) TrackingActive() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracking, nil
}

// ReadButton implements PanelIO. Queued presses are consumed one per call.
func (p *SimPanel) ReadButton() (ButtonAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.presses) == 0 {
		return ButtonNone, nil
	}
	a := p.presses[0]
	p.presses = p.presses[1:]
	return a, nil
}

// SetTrackingLED implements PanelIO.
func (p *SimPanel) SetTrackingLED(on bool) error {
	p.mu.Lock()
	p.trackLED = on
	p.mu.Unlock()
	return nil
}

// SetLockLED implements PanelIO.
func (p *SimPanel) SetLockLED(on bool) error {
	p.mu.Lock()
	p.lockLED = on
	p.mu.Unlock()
	return nil
}

// LEDs reports the simulated indicator states.
func (p *SimPanel) LEDs() (tracking, lock bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackLED, p.lockLED
}

// Close implements PanelIO.
func (p *SimPanel) Close() error {
	return nil
}
