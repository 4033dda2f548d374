package vfo

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every HTTP handler replies with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess replies with data under the standard envelope.
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{Success: true, Data: data, Message: message})
}

// SendError replies with an error under the standard envelope.
func SendError(c *fiber.Ctx, status int, err error) error {
	return SendErrorMessage(c, status, err.Error())
}

// SendErrorMessage replies with a literal error message.
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{Success: false, Error: message})
}
