package session

import (
	"sync"
	"time"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
)

// State tracks where a session sits in the episode lifecycle.
type State int

const (
	// StateIdle: empty buffer, no pending silence timer.
	StateIdle State = iota
	// StateAccumulating: buffer non-empty, silence timer armed.
	StateAccumulating
	// StateEvaluating: episode closed, verdict and dispatch in flight.
	StateEvaluating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateEvaluating:
		return "evaluating"
	default:
		return "unknown"
	}
}

// record is one session's state. The Manager exclusively owns all records;
// everything below mu is guarded by it.
type record struct {
	id string

	mu            sync.Mutex
	state         State
	buffer        *Buffer
	timer         clock.Timer
	armedDeadline time.Time

	// lastActivityAt survives buffer clears so the reaper can measure idle
	// time across episode boundaries.
	createdAt      time.Time
	lastActivityAt time.Time

	// reaped marks a record removed from the manager's map; a caller that
	// fetched it before removal must not append to it.
	reaped bool
}
