package websocket

import "github.com/gofiber/contrib/websocket"

type Handler interface {
	Handle(c *websocket.Conn)
}

// FragmentIngester is the slice of the session manager the stream needs.
type FragmentIngester interface {
	OnFragment(sessionID, text string, isUser bool)
}

type HandlerTransport interface {
	GetTransport() HandlerTransport
}

type HandlerTransportDTO struct {
	StreamHandler Handler
}

func (t *HandlerTransportDTO) GetTransport() HandlerTransport {
	return t
}
