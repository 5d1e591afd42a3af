package notification

import "context"

// Sink delivers a grounding nudge to the wearer's device. Implementations own
// their own retry policy; the engine never retries a failed delivery.
type Sink interface {
	Send(ctx context.Context, sessionID, message string) error
}
