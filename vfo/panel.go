package vfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// ButtonAction is one decoded reading of the panel button ladder.
type ButtonAction int

const (
	ButtonNone ButtonAction = iota
	ButtonUp
	ButtonDown
	ButtonLock
)

func (a ButtonAction) String() string {
	switch a {
	case ButtonUp:
		return "up"
	case ButtonDown:
		return "down"
	case ButtonLock:
		return "lock"
	default:
		return "none"
	}
}

// DecodeLadder maps a raw ADC reading of the button ladder to an action.
// Each button pulls the sense input to a distinct level; readings at or
// above LadderUpBelow mean no button is pressed.
func DecodeLadder(raw int) ButtonAction {
	switch {
	case raw < LadderLockBelow:
		return ButtonLock
	case raw < LadderDownBelow:
		return ButtonDown
	case raw < LadderUpBelow:
		return ButtonUp
	default:
		return ButtonNone
	}
}

// PanelIO is the control and status surface of the front panel: the
// tracking-sense line, the button ladder and the two indicator LEDs.
type PanelIO interface {
	TrackingActive() (bool, error)
	ReadButton() (ButtonAction, error)
	SetTrackingLED(on bool) error
	SetLockLED(on bool) error
	Close() error
}

// Panel drives the real front panel: three GPIO lines on one chip plus an
// IIO ADC channel for the button ladder.
type Panel struct {
	chip      *gpiocdev.Chip
	trackLine *gpiocdev.Line
	trackLED  *gpiocdev.Line
	lockLED   *gpiocdev.Line
	adcPath   string
}

// NewPanel claims the panel lines. trackPin senses whether the
// transceiver's own VFO drive is active; the LED pins are outputs,
// initially off. adcPath is the sysfs raw-voltage attribute of the IIO
// channel wired to the button ladder.
func NewPanel(chipPath string, trackPin, trackLEDPin, lockLEDPin int, adcPath string) (*Panel, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	p := &Panel{chip: chip, adcPath: adcPath}

	p.trackLine, err = chip.RequestLine(
		trackPin,
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("vfo-track-sense"),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request tracking sense pin %d: %w", trackPin, err)
	}

	p.trackLED, err = chip.RequestLine(
		trackLEDPin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("vfo-track-led"),
	)
	if err != nil {
		p.trackLine.Close()
		chip.Close()
		return nil, fmt.Errorf("failed to request tracking LED pin %d: %w", trackLEDPin, err)
	}

	p.lockLED, err = chip.RequestLine(
		lockLEDPin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("vfo-lock-led"),
	)
	if err != nil {
		p.trackLED.Close()
		p.trackLine.Close()
		chip.Close()
		return nil, fmt.Errorf("failed to request lock LED pin %d: %w", lockLEDPin, err)
	}

	return p, nil
}

// TrackingActive reads the tracking-sense line.
func (p *Panel) TrackingActive() (bool, error) {
	v, err := p.trackLine.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read tracking sense: %w", err)
	}
	return v == 1, nil
}

// ReadButton samples the ladder ADC and decodes it. The read is a single
// sample with no debouncing; callers sampling once per gate interval get
// key repeat on held buttons for free.
func (p *Panel) ReadButton() (ButtonAction, error) {
	data, err := os.ReadFile(p.adcPath)
	if err != nil {
		return ButtonNone, fmt.Errorf("failed to read button ADC: %w", err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ButtonNone, fmt.Errorf("bad button ADC reading %q: %w", strings.TrimSpace(string(data)), err)
	}
	return DecodeLadder(raw), nil
}

// SetTrackingLED drives the tracking indicator.
func (p *Panel) SetTrackingLED(on bool) error {
	return setLED(p.trackLED, on, "tracking")
}

// SetLockLED drives the lock indicator.
func (p *Panel) SetLockLED(on bool) error {
	return setLED(p.lockLED, on, "lock")
}

func setLED(line *gpiocdev.Line, on bool, name string) error {
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to set %s LED: %w", name, err)
	}
	return nil
}

// Close releases all panel lines.
func (p *Panel) Close() error {
	var errs []error
	for _, l := range []*gpiocdev.Line{p.trackLine, p.trackLED, p.lockLED} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, err)
		}
		p.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing panel: %v", errs)
	}
	return nil
}
