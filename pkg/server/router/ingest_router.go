package router

import (
	"net/http"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/BreatheLabs/stillpoint/pkg/config"
	handlers "github.com/BreatheLabs/stillpoint/pkg/handlers/http"
	wsHandlers "github.com/BreatheLabs/stillpoint/pkg/handlers/websocket"
	"github.com/BreatheLabs/stillpoint/pkg/middleware"
)

const (
	HealthPath      = "/health"
	WebhookPath     = "/v1/notification/webhook"
	SetupStatusPath = "/v1/notification/setup-status"
	StatusPath      = "/v1/status"
	StreamPath      = "/v1/stream"
)

type ingestRouter struct {
	middlewareTransport *middleware.Transport
	upgradeMiddleware   middleware.Middleware
	handlerTransport    handlers.HandlerTransport
	wsHandlerTransport  wsHandlers.HandlerTransport
	config              *config.Config
}

func NewIngestRouter(
	middlewareTransport *middleware.Transport,
	upgradeMiddleware middleware.Middleware,
	handlerTransport handlers.HandlerTransport,
	wsHandlerTransport wsHandlers.HandlerTransport,
	cfg *config.Config,
) ServerRouter {
	return &ingestRouter{
		middlewareTransport: middlewareTransport,
		upgradeMiddleware:   upgradeMiddleware,
		handlerTransport:    handlerTransport,
		wsHandlerTransport:  wsHandlerTransport,
		config:              cfg,
	}
}

func (r *ingestRouter) BuildRoutes(router *fiber.App) error {

	handlerTransport, ok := r.handlerTransport.GetTransport().(*handlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	wsHandlerTransport, ok := r.wsHandlerTransport.GetTransport().(*wsHandlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	// Health stays in front of the middleware chain so probes never need a
	// device key.
	router.Get(HealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	for _, mw := range r.middlewareTransport.GetMiddlewares() {
		router.Use(mw)
	}

	router.Get(StreamPath,
		r.upgradeMiddleware.Middleware(),
		websocket.New(
			wsHandlerTransport.StreamHandler.Handle,
			websocket.Config{
				HandshakeTimeout: 15 * time.Second,
				ReadBufferSize:   1024,
				WriteBufferSize:  1024,
			},
		))

	router.Post(WebhookPath, handlerTransport.NotificationWebhookHandler.Handle)
	router.Get(StatusPath, handlerTransport.StatusHandler.Handle)
	router.Get(SetupStatusPath, handlerTransport.SetupStatusHandler.Handle)

	return nil
}
