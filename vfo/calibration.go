package vfo

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RatioValid reports whether a stored or computed calibration ratio is
// plausible. The bounds are exclusive: a value on the boundary reads as
// corrupt or unset.
func RatioValid(ratio float64) bool {
	return ratio > CalRatioMin && ratio < CalRatioMax
}

// CalResult describes one calibration run.
type CalResult struct {
	RunID       string    `json:"run_id"`
	ReferenceHz float64   `json:"reference_hz"`
	MeasuredHz  float64   `json:"measured_hz"`
	Ratio       float64   `json:"ratio"`
	Accepted    bool      `json:"accepted"`
	Passes      []float64 `json:"passes"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Calibrator measures a known reference signal against the gate and
// maintains the persisted correction ratio.
type Calibrator struct {
	store *CalStore
}

// NewCalibrator returns a calibrator over the given store.
func NewCalibrator(store *CalStore) *Calibrator {
	return &Calibrator{store: store}
}

// LoadStoredRatio reads the persisted ratio and validates it, returning
// the nominal 1.0 when the record is absent or implausible. Never fatal:
// an uncalibrated unit simply runs on the nominal scale factor.
func (c *Calibrator) LoadStoredRatio() float64 {
	ratio, err := c.store.Load()
	if err != nil {
		slog.Info("No usable calibration record, running uncalibrated", "error", err)
		return 1.0
	}
	if !RatioValid(ratio) {
		slog.Warn("Stored calibration ratio out of range, running uncalibrated",
			"ratio", ratio, "file", c.store.Path())
		return 1.0
	}
	slog.Info("Calibration loaded", "ratio", ratio, "file", c.store.Path())
	return ratio
}

// Run performs a full calibration against referenceHz. next must block
// until the running gate interval completes and return its count; scale is
// the scale factor in effect at startup and is deliberately used for every
// pass, so the passes observe thermal settling rather than refining each
// other.
//
// The outer passes let the oscillators settle after power-up; each pass
// averages a batch of gated counts to knock down jitter. Only the final
// pass's ratio is kept. An out-of-range result is logged and discarded,
// leaving any previously persisted record untouched; the returned error is
// non-nil only when persisting an accepted ratio fails.
func (c *Calibrator) Run(referenceHz, scale float64, next func() GatedCount) (CalResult, error) {
	res := CalResult{
		RunID:       uuid.NewString(),
		ReferenceHz: referenceHz,
		Passes:      make([]float64, 0, CalSettlePasses),
	}

	slog.Info("Calibration started", "run_id", res.RunID, "reference_hz", referenceHz)

	for pass := 0; pass < CalSettlePasses; pass++ {
		var sum float64
		for i := 0; i < CalGatesPerPass; i++ {
			sum += float64(next())
		}
		avg := sum / CalGatesPerPass

		res.MeasuredHz = avg * scale
		res.Ratio = referenceHz / res.MeasuredHz
		res.Passes = append(res.Passes, res.Ratio)

		slog.Info("Calibration pass",
			"run_id", res.RunID,
			"pass", pass+1,
			"measured_hz", res.MeasuredHz,
			"ratio", res.Ratio)
	}

	res.FinishedAt = time.Now()

	if !RatioValid(res.Ratio) {
		slog.Warn("Calibration ratio out of range, discarding",
			"run_id", res.RunID, "ratio", res.Ratio)
		return res, nil
	}

	if err := c.store.Save(res.Ratio); err != nil {
		return res, fmt.Errorf("calibration computed but not persisted: %w", err)
	}
	res.Accepted = true
	slog.Info("Calibration accepted", "run_id", res.RunID, "ratio", res.Ratio, "file", c.store.Path())
	return res, nil
}
