package middleware

import "github.com/gofiber/fiber/v2"

type Middleware interface {
	Middleware() fiber.Handler
}

type Transport struct {
	PanicRecoverMiddleware Middleware
	MetricsMiddleware      Middleware
	AuthMiddleware         Middleware
}

// GetMiddlewares returns the chain outermost first: recovery wraps
// everything, metrics observes auth rejections too, auth runs last.
func (t *Transport) GetMiddlewares() []fiber.Handler {
	var chain []fiber.Handler
	for _, m := range []Middleware{t.PanicRecoverMiddleware, t.MetricsMiddleware, t.AuthMiddleware} {
		if m != nil {
			chain = append(chain, m.Middleware())
		}
	}
	return chain
}
