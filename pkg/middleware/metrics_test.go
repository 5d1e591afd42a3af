package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraPrometheus "github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
	"github.com/BreatheLabs/stillpoint/pkg/middleware"
)

func newMetricsTestApp() *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	app.Use(middleware.NewMetricsMiddleware(logger).Middleware())
	app.Post("/accepted", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/missing-session", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id required"})
	})
	return app
}

func TestMetricsMiddleware_CountsByStatusClass(t *testing.T) {
	app := newMetricsTestApp()

	before2xx := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("POST", "2xx"))
	before4xx := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("GET", "4xx"))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/accepted", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing-session", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	after2xx := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("POST", "2xx"))
	after4xx := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("GET", "4xx"))

	assert.Equal(t, 1.0, after2xx-before2xx)
	assert.Equal(t, 1.0, after4xx-before4xx)
}

func TestMetricsMiddleware_HandlerErrorCountsAs5xx(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	app.Use(middleware.NewMetricsMiddleware(logger).Middleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.ErrServiceUnavailable
	})

	before := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("GET", "5xx"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	after := testutil.ToFloat64(infraPrometheus.HTTPRequestsTotal.WithLabelValues("GET", "5xx"))
	assert.Equal(t, 1.0, after-before)
}
