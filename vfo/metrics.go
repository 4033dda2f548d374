package vfo

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus instruments of the control loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	MeasuredHz       prometheus.Gauge
	GateCount        prometheus.Gauge
	Gates            prometheus.Counter
	CommandedHz      prometheus.Gauge
	CalibrationRatio prometheus.Gauge
	RejectedCommands prometheus.Counter
}

// NewMetrics registers the instruments against reg, defaulting to the
// global Prometheus registry when nil. Re-registration of identical
// collectors is tolerated.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	measured, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vfo_measured_hz",
		Help: "Frequency resolved from the most recent gate interval.",
	}), "vfo_measured_hz")
	if err != nil {
		return nil, err
	}
	count, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vfo_gate_count",
		Help: "Raw edge count of the most recent gate interval.",
	}), "vfo_gate_count")
	if err != nil {
		return nil, err
	}
	gates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vfo_gates_total",
		Help: "Total completed gate intervals consumed by the tracker.",
	}), "vfo_gates_total")
	if err != nil {
		return nil, err
	}
	commanded, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vfo_commanded_hz",
		Help: "Last frequency successfully commanded to the synthesizer.",
	}), "vfo_commanded_hz")
	if err != nil {
		return nil, err
	}
	ratio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vfo_calibration_ratio",
		Help: "Calibration ratio in effect (1.0 when uncalibrated).",
	}), "vfo_calibration_ratio")
	if err != nil {
		return nil, err
	}
	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vfo_rejected_commands_total",
		Help: "Synthesizer commands suppressed by the band range check.",
	}), "vfo_rejected_commands_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:         gatherer,
		MeasuredHz:       measured,
		GateCount:        count,
		Gates:            gates,
		CommandedHz:      commanded,
		CalibrationRatio: ratio,
		RejectedCommands: rejected,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveGate records one completed gate interval.
func (m *Metrics) ObserveGate(count uint32, hz float64) {
	if m == nil {
		return
	}
	m.GateCount.Set(float64(count))
	m.MeasuredHz.Set(hz)
	m.Gates.Inc()
}

// SetCommanded records a successful synthesizer command.
func (m *Metrics) SetCommanded(freqHz uint32) {
	if m == nil {
		return
	}
	m.CommandedHz.Set(float64(freqHz))
}

// SetRatio records the calibration ratio in effect.
func (m *Metrics) SetRatio(ratio float64) {
	if m == nil {
		return
	}
	m.CalibrationRatio.Set(ratio)
}

// IncRejected counts a suppressed out-of-band command.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.RejectedCommands.Inc()
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
