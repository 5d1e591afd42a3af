package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const deviceKeyHeader = "X-Stillpoint-Key"

type deviceAuthMiddleware struct {
	logger    *logrus.Logger
	deviceKey string
}

// NewDeviceAuthMiddleware gates ingest routes behind the shared device key.
// An empty configured key disables the check.
func NewDeviceAuthMiddleware(logger *logrus.Logger, deviceKey string) Middleware {
	return &deviceAuthMiddleware{
		logger:    logger,
		deviceKey: deviceKey,
	}
}

func (m *deviceAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if m.deviceKey == "" {
			return ctx.Next()
		}

		key := ctx.Get(deviceKeyHeader)
		if key == "" {
			m.logger.Debug("no device key provided")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "device key required"})
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(m.deviceKey)) != 1 {
			m.logger.Debug("invalid device key")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid device key"})
		}

		return ctx.Next()
	}
}
