package vfo

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// EdgeSource is a software counting path over the GPIO character device:
// rising edges on the input line advance a simulated 16-bit counter and
// the gate segments come from a host timer at the segment interval.
//
// Kernel edge events top out well below the rates the dedicated counting
// hardware handles, so this path is for bench signals in the tens of kHz.
// Host timer error relative to the nominal segment interval is systematic
// and ends up inside the calibration ratio like any other clock error.
type EdgeSource struct {
	chipPath string
	offset   int

	inputOverflow func()
	clockOverflow func()

	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu  sync.Mutex
	raw uint32

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewEdgeSource prepares an edge source on the given GPIO chip and line
// offset. The line is not claimed until Start.
func NewEdgeSource(chipPath string, offset int) *EdgeSource {
	return &EdgeSource{
		chipPath: chipPath,
		offset:   offset,
		done:     make(chan struct{}),
	}
}

// Notify implements TimerSource.
func (s *EdgeSource) Notify(inputOverflow, clockOverflow func()) {
	s.inputOverflow = inputOverflow
	s.clockOverflow = clockOverflow
}

func (s *EdgeSource) edge() {
	s.mu.Lock()
	s.raw++
	wrapped := s.raw == 1<<InputCounterBits
	if wrapped {
		s.raw = 0
	}
	s.mu.Unlock()

	if wrapped && s.inputOverflow != nil {
		s.inputOverflow()
	}
}

// SnapshotAndReset implements TimerSource.
func (s *EdgeSource) SnapshotAndReset() uint16 {
	s.mu.Lock()
	v := uint16(s.raw)
	s.raw = 0
	s.mu.Unlock()
	return v
}

// Start claims the input line and begins counting edges and segments.
func (s *EdgeSource) Start() error {
	if s.clockOverflow == nil {
		return fmt.Errorf("edge source started before Notify")
	}

	chip, err := gpiocdev.NewChip(s.chipPath)
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", s.chipPath, err)
	}
	s.chip = chip

	line, err := chip.RequestLine(
		s.offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("vfo-input"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { s.edge() }),
	)
	if err != nil {
		chip.Close()
		s.chip = nil
		return fmt.Errorf("failed to request input line %d: %w", s.offset, err)
	}
	s.line = line

	s.started = true
	s.wg.Add(1)
	go s.segments()
	return nil
}

func (s *EdgeSource) segments() {
	defer s.wg.Done()
	ticker := time.NewTicker(SegmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.clockOverflow()
		}
	}
}

// Close stops segment timing and releases the GPIO line.
func (s *EdgeSource) Close() error {
	if s.started {
		close(s.done)
		s.wg.Wait()
		s.started = false
	}

	var errs []error
	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close input line: %w", err))
		}
		s.line = nil
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		s.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing edge source: %v", errs)
	}
	return nil
}
