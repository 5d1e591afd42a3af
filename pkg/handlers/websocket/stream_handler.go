package websocket

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/BreatheLabs/stillpoint/pkg/config"
	infraPrometheus "github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
	infraWebsocket "github.com/BreatheLabs/stillpoint/pkg/infra/websocket"
	"github.com/BreatheLabs/stillpoint/pkg/middleware"
)

type streamHandler struct {
	config *config.Config
	logger *logrus.Logger
	engine FragmentIngester
}

func NewStreamHandler(
	config *config.Config,
	logger *logrus.Logger,
	engine FragmentIngester,
) Handler {
	return &streamHandler{
		config: config,
		logger: logger,
		engine: engine,
	}
}

// Handle consumes live transcript frames for one wearer session. A frame is
// either a single segment object or a {"segments": [...]} batch; each
// segment goes to the engine as one fragment. Malformed frames are dropped,
// never answered, so the device side sees a quiet protocol.
func (h *streamHandler) Handle(c *websocket.Conn) {
	if semaphore, ok := c.Locals(middleware.SemaphoreLocalKey).(*infraWebsocket.Semaphore); ok {
		defer semaphore.Release()
	}

	sessionID, _ := c.Locals(middleware.SessionLocalKey).(string)
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	if sessionID == "" {
		sessionID = c.Query("uid")
	}
	if sessionID == "" {
		h.logger.Error("missing session id in stream connection")
		return
	}

	pongWait := h.config.WebSocket.PongWait
	pingPeriod := h.config.WebSocket.PingPeriod

	if err := c.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.WithError(err).Error("failed to set read deadline")
		return
	}
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	// Single writer: only this goroutine touches the write side.
	ticker := time.NewTicker(pingPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					h.logger.WithError(err).Debug("failed to send ping")
					return
				}
			}
		}
	}()

	h.logger.WithField("session_id", sessionID).Info("transcript stream opened")

	var p fastjson.Parser
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			h.logger.WithField("session_id", sessionID).WithError(err).Debug("transcript stream closed")
			return
		}

		frame, err := p.ParseBytes(message)
		if err != nil {
			h.logger.WithError(err).Debug("dropping malformed stream frame")
			continue
		}

		if count := h.ingestFrame(sessionID, frame); count > 0 {
			infraPrometheus.FragmentsTotal.WithLabelValues("websocket").Add(float64(count))
		}
	}
}

func (h *streamHandler) ingestFrame(sessionID string, frame *fastjson.Value) int {
	if segments := frame.GetArray("segments"); len(segments) > 0 {
		for _, seg := range segments {
			h.engine.OnFragment(sessionID, string(seg.GetStringBytes("text")), seg.GetBool("is_user"))
		}
		return len(segments)
	}
	if frame.Exists("text") {
		h.engine.OnFragment(sessionID, string(frame.GetStringBytes("text")), frame.GetBool("is_user"))
		return 1
	}
	return 0
}
