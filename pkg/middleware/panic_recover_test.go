package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BreatheLabs/stillpoint/pkg/middleware"
)

func TestPanicRecoverMiddleware_RecoversAndAnswers500(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	app.Use(middleware.NewPanicRecoverMiddleware(logger).Middleware())
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("handler exploded")
	})
	app.Get("/fine", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body["error"])

	// The app keeps serving after a recovered panic.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/fine", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
