package vfo

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIPort loads the DDS over SPI and latches the word with an FQ_UD pulse
// on a GPIO line. The SPI controller shifts the high bit of each byte
// first while the DDS expects W0 first, so each byte is bit-reversed
// before transmission.
type SPIPort struct {
	port  spi.PortCloser
	conn  spi.Conn
	chip  *gpiocdev.Chip
	latch *gpiocdev.Line
}

// NewSPIPort opens the SPI device and claims the latch line.
func NewSPIPort(device string, speedHz uint32, gpioChip string, latchPin int) (*SPIPort, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}

	// AD9850 serial load clocks data on the rising edge (SPI Mode 0).
	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	chip, err := gpiocdev.NewChip(gpioChip)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", gpioChip, err)
	}

	latch, err := chip.RequestLine(
		latchPin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("dds-fqud"),
	)
	if err != nil {
		chip.Close()
		port.Close()
		return nil, fmt.Errorf("failed to request latch line %d: %w", latchPin, err)
	}

	return &SPIPort{port: port, conn: conn, chip: chip, latch: latch}, nil
}

// Send implements SynthPort: shifts the frame out and pulses FQ_UD to
// latch it into the DDS frequency register.
func (p *SPIPort) Send(frame [5]byte) error {
	tx := make([]byte, len(frame))
	for i, b := range frame {
		tx[i] = bitReverse(b)
	}
	rx := make([]byte, len(tx))

	if err := p.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}

	if err := p.latch.SetValue(1); err != nil {
		return fmt.Errorf("failed to raise latch: %w", err)
	}
	// FQ_UD minimum high time is nanoseconds; a microsecond is plenty.
	time.Sleep(time.Microsecond)
	if err := p.latch.SetValue(0); err != nil {
		return fmt.Errorf("failed to release latch: %w", err)
	}
	return nil
}

// Close releases the SPI port and GPIO resources.
func (p *SPIPort) Close() error {
	var errs []error
	if p.latch != nil {
		if err := p.latch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close latch line: %w", err))
		}
		p.latch = nil
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		p.chip = nil
	}
	if p.port != nil {
		if err := p.port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close SPI port: %w", err))
		}
		p.port = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SPI port: %v", errs)
	}
	return nil
}

func bitReverse(b byte) byte {
	b = b>>4 | b<<4
	b = b>>2&0x33 | b<<2&0xCC
	b = b>>1&0x55 | b<<1&0xAA
	return b
}

// NopPort discards frames. Used in simulation mode where no synthesizer
// hardware is attached; the last frame is retained for inspection.
type NopPort struct {
	mu   sync.Mutex
	last [5]byte
	sent bool
}

// Send implements SynthPort.
func (p *NopPort) Send(frame [5]byte) error {
	p.mu.Lock()
	p.last = frame
	p.sent = true
	p.mu.Unlock()
	return nil
}

// Last returns the most recent frame and whether any frame has been sent.
func (p *NopPort) Last() ([5]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.sent
}

// Close implements SynthPort.
func (p *NopPort) Close() error {
	return nil
}
