package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
	"github.com/BreatheLabs/stillpoint/pkg/version"
)

type statusHandler struct {
	logger    *logrus.Logger
	engine    Engine
	clk       clock.Clock
	startedAt time.Time
}

func NewStatusHandler(logger *logrus.Logger, engine Engine, clk clock.Clock) Handler {
	return &statusHandler{
		logger:    logger,
		engine:    engine,
		clk:       clk,
		startedAt: clk.Now(),
	}
}

func (h *statusHandler) Handle(c *fiber.Ctx) error {
	stats := h.engine.Stats()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"active_sessions": stats.ActiveSessions,
		"accumulating":    stats.Accumulating,
		"uptime_seconds":  int64(h.clk.Now().Sub(h.startedAt).Seconds()),
		"version":         version.Version,
	})
}
