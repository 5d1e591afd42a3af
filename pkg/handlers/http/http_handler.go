package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BreatheLabs/stillpoint/pkg/session"
)

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

// Engine is the slice of the session manager the transport needs.
type Engine interface {
	OnFragment(sessionID, text string, isUser bool)
	Stats() session.Stats
}

type HandlerTransport interface {
	GetTransport() HandlerTransport
}

type HandlerTransportDTO struct {
	NotificationWebhookHandler Handler
	StatusHandler              Handler
	SetupStatusHandler         Handler
}

func (t *HandlerTransportDTO) GetTransport() HandlerTransport {
	return t
}
