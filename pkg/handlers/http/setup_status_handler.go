package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type setupStatusHandler struct {
	logger *logrus.Logger
}

func NewSetupStatusHandler(logger *logrus.Logger) Handler {
	return &setupStatusHandler{logger: logger}
}

// Handle answers the device platform's integration probe. The engine needs
// no per-wearer setup, so the probe always succeeds.
func (h *setupStatusHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"is_setup_completed": true})
}
