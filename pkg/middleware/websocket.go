package middleware

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	infra "github.com/BreatheLabs/stillpoint/pkg/infra/websocket"
)

const (
	// SemaphoreLocalKey exposes the connection semaphore to the stream
	// handler so it can release its slot on disconnect.
	SemaphoreLocalKey = "ws_semaphore"
	// SessionLocalKey carries the wearer session id resolved at upgrade.
	SessionLocalKey = "session_id"
)

type websocketUpgradeMiddleware struct {
	logger    *logrus.Logger
	semaphore *infra.Semaphore
}

// NewWebsocketUpgradeMiddleware guards the stream route. Upgrade requests
// need a session id and a free connection slot; anything else is turned away
// before the handshake.
func NewWebsocketUpgradeMiddleware(logger *logrus.Logger, maxConnections int) Middleware {
	return &websocketUpgradeMiddleware{
		logger:    logger,
		semaphore: infra.NewSemaphore(maxConnections),
	}
}

func (m *websocketUpgradeMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// The device platform sends session_id, older firmware sends uid.
		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = c.Query("uid")
		}
		if sessionID == "" {
			m.logger.Debug("stream upgrade without session id")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id required"})
		}

		if !m.semaphore.Acquire() {
			m.logger.Warn("maximum websocket connections reached, rejecting connection")
			return fiber.ErrTooManyRequests
		}

		c.Locals(SemaphoreLocalKey, m.semaphore)
		c.Locals(SessionLocalKey, sessionID)

		return c.Next()
	}
}
