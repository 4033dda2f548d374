package vfo

// Counting hardware geometry. The input signal runs through a 16-bit edge
// counter; the gate interval is generated by a 16 MHz reference divided by
// 1024 wrapping an 8-bit counter, six wraps per gate.
const (
	ReferenceClockHz = 16_000_000
	ClockPrescaler   = 1024

	InputCounterBits = 16
	ClockCounterBits = 8

	SegmentsPerGate = 6

	// GateDuration is the nominal gate interval in seconds: 98.304 ms,
	// deliberately close to the 100 ms round target. The scale factor
	// absorbs the difference.
	GateDuration = float64(SegmentsPerGate*(1<<ClockCounterBits)*ClockPrescaler) / float64(ReferenceClockHz)
)

// Calibration run shape and the plausibility window for a stored or
// computed ratio. Values on the boundary count as corrupt.
const (
	CalSettlePasses = 8
	CalGatesPerPass = 10

	CalRatioMin = 0.95
	CalRatioMax = 1.05
)

// Synthesizer defaults for an AD9850-class DDS.
const (
	DefaultSynthClockHz = 125_000_000
	SynthControlByte    = 0x00

	DefaultFreqMinHz = 4_900_000
	DefaultFreqMaxHz = 5_500_000

	// TuneStepHz is applied per button action in the holding mode.
	TuneStepHz = 5
)

// Button ladder decode points, raw 10-bit ADC counts. The panel buttons
// pull the sense input to distinct voltages through a resistor ladder;
// anything at or above LadderUpBelow reads as no press.
const (
	LadderLockBelow = 150
	LadderDownBelow = 450
	LadderUpBelow   = 800
)
