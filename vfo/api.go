package vfo

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// StatusModule exposes the tracker state and the manual controls that
// mirror the front panel. The API is advisory: the control loop is fully
// functional without it.
type StatusModule struct {
	deps *Deps
}

// NewStatusModule creates the status/control module.
func NewStatusModule(deps *Deps) (*StatusModule, error) {
	if deps == nil || deps.Tracker == nil {
		return nil, fmt.Errorf("status module requires a tracker")
	}
	return &StatusModule{deps: deps}, nil
}

// Name returns the module identifier.
func (m *StatusModule) Name() string {
	return "status"
}

// RegisterRoutes adds the module's HTTP routes.
func (m *StatusModule) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/vfo")

	api.Get("/status", m.handleStatus)
	api.Post("/lock", m.handleLock)
	api.Post("/step", m.handleStep)

	cal := app.Group("/api/calibration")
	cal.Get("/", m.handleCalibrationState)
	cal.Post("/run", m.handleCalibrationRun)

	slog.Info("Status module routes registered")
}

func (m *StatusModule) handleStatus(c *fiber.Ctx) error {
	minHz, maxHz := m.deps.Synth.Band()
	return SendSuccess(c, map[string]interface{}{
		"reading":  m.deps.Tracker.Status(),
		"band_min": minHz,
		"band_max": maxHz,
	}, "")
}

func (m *StatusModule) handleLock(c *fiber.Ctx) error {
	locked := m.deps.Tracker.ToggleLock()
	return SendSuccess(c, map[string]interface{}{
		"locked": locked,
	}, "Lock toggled")
}

func (m *StatusModule) handleStep(c *fiber.Ctx) error {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	// Same convention as the panel buttons: "up" lowers the commanded
	// frequency, see Tracker.StepUp.
	switch req.Direction {
	case "up":
		m.deps.Tracker.StepUp()
	case "down":
		m.deps.Tracker.StepDown()
	default:
		return SendErrorMessage(c, 400, "Invalid direction. Use: up or down")
	}

	return SendSuccess(c, map[string]interface{}{
		"commanded_hz": m.deps.Synth.LastFrequency(),
	}, "Step applied")
}

func (m *StatusModule) handleCalibrationState(c *fiber.Ctx) error {
	ratio := m.deps.Tracker.Ratio()
	return SendSuccess(c, map[string]interface{}{
		"ratio":        ratio,
		"calibrated":   ratio != 1.0,
		"scale_factor": m.deps.Tracker.Scale(),
		"file":         m.deps.Store.Path(),
	}, "")
}

func (m *StatusModule) handleCalibrationRun(c *fiber.Ctx) error {
	var req struct {
		ReferenceHz float64 `json:"reference_hz"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	referenceHz := req.ReferenceHz
	if referenceHz == 0 {
		referenceHz = m.deps.ReferenceHz
	}
	if referenceHz <= 0 {
		return SendErrorMessage(c, 400, "No calibration reference frequency configured")
	}

	// Blocks for the full run (8 passes of 10 gates, a little under 8 s).
	res, err := m.deps.Tracker.RequestCalibration(c.Context(), referenceHz)
	if err != nil {
		return SendError(c, 500, err)
	}

	msg := "Calibration discarded: ratio out of range"
	if res.Accepted {
		msg = "Calibration accepted"
	}
	return SendSuccess(c, res, msg)
}

func init() {
	RegisterModule("status", func(deps *Deps) (Module, error) {
		return NewStatusModule(deps)
	})
}
