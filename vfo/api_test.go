package vfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, referenceHz float64) (*fiber.App, *Deps) {
	t.Helper()

	src := NewSimSource(0)
	gate := NewGate(src)
	synth := NewSynth(&NopPort{}, DefaultSynthClockHz, DefaultFreqMinHz, DefaultFreqMaxHz)
	store := tempStore(t)
	tracker := NewTracker(gate, synth, NewSimPanel(), NewCalibrator(store), nil, 5_200_000)

	deps := &Deps{Tracker: tracker, Synth: synth, Store: store, ReferenceHz: referenceHz}

	app := fiber.New()
	module, err := NewStatusModule(deps)
	require.NoError(t, err)
	module.RegisterRoutes(app)
	return app, deps
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	var body APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStatusEndpoint(t *testing.T) {
	app, _ := newTestApp(t, 5_000_000)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/vfo/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeResponse(t, resp)
	assert.True(t, body.Success)

	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(DefaultFreqMinHz), data["band_min"])
	assert.Equal(t, float64(DefaultFreqMaxHz), data["band_max"])
}

func TestLockEndpointToggles(t *testing.T) {
	app, deps := newTestApp(t, 5_000_000)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/vfo/lock", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, deps.Tracker.Locked())

	resp, err = app.Test(httptest.NewRequest("POST", "/api/vfo/lock", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, deps.Tracker.Locked())
}

func TestStepEndpoint(t *testing.T) {
	app, deps := newTestApp(t, 5_000_000)

	req := httptest.NewRequest("POST", "/api/vfo/step", strings.NewReader(`{"direction":"up"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, uint32(5_199_995), deps.Synth.LastFrequency(), "up lowers the output")

	req = httptest.NewRequest("POST", "/api/vfo/step", strings.NewReader(`{"direction":"down"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, uint32(5_200_000), deps.Synth.LastFrequency())
}

func TestStepEndpointRejectsBadInput(t *testing.T) {
	app, _ := newTestApp(t, 5_000_000)

	req := httptest.NewRequest("POST", "/api/vfo/step", strings.NewReader(`{"direction":"sideways"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/vfo/step", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCalibrationStateEndpoint(t *testing.T) {
	app, deps := newTestApp(t, 5_000_000)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/calibration/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeResponse(t, resp)
	require.True(t, body.Success)
	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, data["ratio"])
	assert.Equal(t, false, data["calibrated"])

	deps.Tracker.SetRatio(1.0123)
	resp, err = app.Test(httptest.NewRequest("GET", "/api/calibration/", nil))
	require.NoError(t, err)
	data = decodeResponse(t, resp).Data.(map[string]interface{})
	assert.Equal(t, 1.0123, data["ratio"])
	assert.Equal(t, true, data["calibrated"])
}

func TestCalibrationRunWithoutReference(t *testing.T) {
	app, _ := newTestApp(t, 0)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/calibration/run", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestModuleRegistry(t *testing.T) {
	for _, name := range []string{"status", "stream"} {
		_, exists := GetModule(name)
		assert.True(t, exists, "module %s not registered", name)
	}
	_, exists := GetModule("nonexistent")
	assert.False(t, exists)
}
