package throttle

import (
	"sync"
	"time"
)

// Throttle enforces a minimum spacing between nudges per session. Stamps
// persist across episode boundaries until Forget removes them.
type Throttle struct {
	minInterval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func New(minInterval time.Duration) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		last:        make(map[string]time.Time),
	}
}

// TryConsume reports whether a nudge may go out now and, when permitted,
// records now as the session's stamp in the same critical section. Two
// near-simultaneous calls for one session cannot both succeed. The stamp is
// never rolled back; a failed delivery still counts against the interval.
func (t *Throttle) TryConsume(sessionID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[sessionID]; ok && now.Sub(last) < t.minInterval {
		return false
	}
	t.last[sessionID] = now
	return true
}

// Forget drops the session's stamp. The idle-session reaper calls this so
// throttle rows die with their session record.
func (t *Throttle) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, sessionID)
}

// Last returns the session's most recent nudge stamp, if any.
func (t *Throttle) Last(sessionID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[sessionID]
	return last, ok
}
