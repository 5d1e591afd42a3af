package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
)

const uidQueryParam = "uid"

type notificationWebhookHandler struct {
	logger *logrus.Logger
	engine Engine
}

func NewNotificationWebhookHandler(logger *logrus.Logger, engine Engine) Handler {
	return &notificationWebhookHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle ingests a transcript batch from the device platform. The session id
// comes from the body, or from the uid query parameter for devices that only
// sign the URL. Segments are handed to the engine in order; blank ones are
// the engine's problem, not the transport's.
func (h *notificationWebhookHandler) Handle(c *fiber.Ctx) error {
	var p fastjson.Parser
	body, err := p.ParseBytes(c.Body())
	if err != nil {
		h.logger.WithError(err).Debug("failed to parse webhook body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	sessionID := string(body.GetStringBytes("session_id"))
	if sessionID == "" {
		sessionID = c.Query(uidQueryParam)
	}
	if strings.TrimSpace(sessionID) == "" {
		h.logger.Debug("webhook request without session id")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id required"})
	}

	segments := body.GetArray("segments")
	for _, seg := range segments {
		text := string(seg.GetStringBytes("text"))
		isUser := seg.GetBool("is_user")
		h.engine.OnFragment(sessionID, text, isUser)
	}

	if len(segments) > 0 {
		prometheus.FragmentsTotal.WithLabelValues("webhook").Add(float64(len(segments)))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":   "accepted",
		"buffered": len(segments),
	})
}
