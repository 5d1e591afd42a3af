package httpx

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker shields the engine from a persistently failing delivery
// endpoint: once open, calls fail fast instead of burning the sink timeout.
type CircuitBreaker interface {
	Execute(fn func() error) error
}

type breakerWrapper struct {
	inner *gobreaker.CircuitBreaker
}

// NewCircuitBreaker trips after maxFailures consecutive failures and lets a
// few probe requests through once resetTimeout has passed.
func NewCircuitBreaker(name string, maxFailures uint32, resetTimeout time.Duration) CircuitBreaker {
	return &breakerWrapper{
		inner: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Timeout:     resetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
	}
}

func (b *breakerWrapper) Execute(fn func() error) error {
	if _, err := b.inner.Execute(func() (interface{}, error) {
		return nil, fn()
	}); err != nil {
		return fmt.Errorf("breaker (%s): %w", b.inner.Name(), err)
	}
	return nil
}
