package vfo

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *CalStore {
	t.Helper()
	return NewCalStore(filepath.Join(t.TempDir(), "calibration.dat"))
}

func TestCalStoreRoundTrip(t *testing.T) {
	store := tempStore(t)

	require.NoError(t, store.Save(1.0234))

	ratio, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1.0234, ratio)
}

func TestCalStoreMissingFile(t *testing.T) {
	store := tempStore(t)

	_, err := store.Load()
	assert.Error(t, err)
}

func TestCalStoreTruncatedFile(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte{1, 2, 3}, 0o644))

	_, err := store.Load()
	assert.ErrorContains(t, err, "truncated")
}

func TestCalStoreRecordLayout(t *testing.T) {
	store := tempStore(t)

	// The record is a bare little-endian float64 at offset 0.
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(0.998))
	require.NoError(t, os.WriteFile(store.Path(), buf[:], 0o644))

	ratio, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.998, ratio)

	require.NoError(t, store.Save(1.002))
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Len(t, data, 8)
	assert.Equal(t, math.Float64bits(1.002), binary.LittleEndian.Uint64(data))
}
