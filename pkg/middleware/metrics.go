package middleware

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
)

type metricsMiddleware struct {
	logger *logrus.Logger
}

// NewMetricsMiddleware counts every request by method and status class once
// the rest of the chain has run.
func NewMetricsMiddleware(logger *logrus.Logger) Middleware {
	return &metricsMiddleware{logger: logger}
}

func (m *metricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		prometheus.HTTPRequestsTotal.WithLabelValues(c.Method(), statusClass(status)).Inc()

		return err
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "5xx"
	}
	return fmt.Sprintf("%dxx", status/100)
}
