package vfo

// NominalScale is the Hz-per-count conversion factor of an uncalibrated
// unit: one count per gate interval corresponds to this many hertz.
func NominalScale() float64 {
	return 1.0 / GateDuration
}

// ScaleFor derives the conversion factor from a calibration ratio.
func ScaleFor(ratio float64) float64 {
	return ratio / GateDuration
}

// Resolve converts a gated edge count into a frequency in Hz.
func Resolve(count GatedCount, scale float64) float64 {
	return float64(count) * scale
}
