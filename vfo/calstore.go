package vfo

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// CalStore persists the calibration ratio as a single little-endian
// float64 at offset 0 of a file. No magic number, version or checksum:
// validity is inferred purely from the numeric range, matching the raw
// storage record of deployed units (widened from their 4-byte float).
type CalStore struct {
	path string
}

// NewCalStore returns a store backed by the given file path.
func NewCalStore(path string) *CalStore {
	return &CalStore{path: path}
}

// Path returns the backing file path.
func (s *CalStore) Path() string {
	return s.path
}

// Load reads the persisted ratio. Any failure (absent file, short read)
// is reported as an error; callers treat every error as "uncalibrated".
func (s *CalStore) Load() (float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read calibration file: %w", err)
	}
	if len(data) < 8 {
		return 0, fmt.Errorf("calibration file %s truncated: %d bytes", s.path, len(data))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

// Save writes the ratio, replacing any previous record.
func (s *CalStore) Save(ratio float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(ratio))
	if err := os.WriteFile(s.path, buf[:], 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
