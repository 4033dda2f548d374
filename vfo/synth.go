package vfo

import (
	"fmt"
	"math"
	"sync"
)

// SynthPort transmits one assembled 40-bit command frame to the DDS and
// latches it.
type SynthPort interface {
	Send(frame [5]byte) error
	Close() error
}

// TuningWord computes the DDS phase accumulator increment for the desired
// output frequency: word = freq * 2^32 / clock.
func TuningWord(freqHz, clockHz uint32) uint32 {
	return uint32(math.Round(float64(freqHz) * math.Pow(2, 32) / float64(clockHz)))
}

// Frame assembles the serial command for a tuning word: the four word
// bytes least-significant first, then the control byte. Bit order within
// each byte is the port's concern; the DDS shifts W0 first.
func Frame(word uint32) [5]byte {
	return [5]byte{
		byte(word),
		byte(word >> 8),
		byte(word >> 16),
		byte(word >> 24),
		SynthControlByte,
	}
}

// Synth drives an AD9850-class direct digital synthesizer. Commands are
// range-checked against the permitted band before anything touches the
// wire; a rejected command leaves the synthesizer in its previous state.
type Synth struct {
	port    SynthPort
	clockHz uint32
	minHz   uint32
	maxHz   uint32

	mu     sync.Mutex
	lastHz uint32
}

// NewSynth returns a driver over the given port. clockHz is the DDS
// reference oscillator; minHz/maxHz bound the permitted output band.
func NewSynth(port SynthPort, clockHz, minHz, maxHz uint32) *Synth {
	return &Synth{
		port:    port,
		clockHz: clockHz,
		minHz:   minHz,
		maxHz:   maxHz,
	}
}

// SetFrequency commands the synthesizer to freqHz. Out-of-band values are
// rejected before transmission.
func (s *Synth) SetFrequency(freqHz uint32) error {
	if freqHz < s.minHz || freqHz > s.maxHz {
		return fmt.Errorf("frequency %d Hz outside band [%d, %d]", freqHz, s.minHz, s.maxHz)
	}

	if err := s.port.Send(Frame(TuningWord(freqHz, s.clockHz))); err != nil {
		return fmt.Errorf("synthesizer write failed: %w", err)
	}

	s.mu.Lock()
	s.lastHz = freqHz
	s.mu.Unlock()
	return nil
}

// LastFrequency returns the last successfully commanded frequency, zero if
// none has been sent yet.
func (s *Synth) LastFrequency() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHz
}

// Band returns the permitted output band.
func (s *Synth) Band() (minHz, maxHz uint32) {
	return s.minHz, s.maxHz
}

// Close releases the underlying port.
func (s *Synth) Close() error {
	return s.port.Close()
}
