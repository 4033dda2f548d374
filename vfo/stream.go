package vfo

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// StreamModule pushes one Reading per completed gate over a websocket.
type StreamModule struct {
	deps *Deps
}

// NewStreamModule creates the streaming module.
func NewStreamModule(deps *Deps) (*StreamModule, error) {
	if deps == nil || deps.Tracker == nil {
		return nil, fmt.Errorf("stream module requires a tracker")
	}
	return &StreamModule{deps: deps}, nil
}

// Name returns the module identifier.
func (m *StreamModule) Name() string {
	return "stream"
}

// RegisterRoutes adds the module's HTTP routes.
func (m *StreamModule) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/vfo")

	// WebSocket endpoint for live readings
	api.Get("/ws", websocket.New(m.handleWebSocket))
}

// handleWebSocket streams readings until the client disconnects. Readings
// the client cannot keep up with are dropped by the subscription, not
// queued.
func (m *StreamModule) handleWebSocket(c *websocket.Conn) {
	clientID := uuid.New().String()

	readings, cancel := m.deps.Tracker.Subscribe()
	defer cancel()

	slog.Info("Reading stream client connected", "client_id", clientID)

	// Send the last known state immediately so the client does not wait
	// a full gate interval for its first frame.
	if err := c.WriteJSON(m.deps.Tracker.Status()); err != nil {
		slog.Debug("Reading stream write failed", "client_id", clientID, "error", err)
		return
	}

	// Reads are discarded; a read error is the disconnect signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case reading, ok := <-readings:
			if !ok {
				return
			}
			if err := c.WriteJSON(reading); err != nil {
				slog.Debug("Reading stream write failed", "client_id", clientID, "error", err)
				return
			}
		case <-done:
			slog.Info("Reading stream client disconnected", "client_id", clientID)
			return
		}
	}
}

func init() {
	RegisterModule("stream", func(deps *Deps) (Module, error) {
		return NewStreamModule(deps)
	})
}
