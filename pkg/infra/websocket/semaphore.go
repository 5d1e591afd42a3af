package websocket

// Semaphore bounds concurrent stream connections. Acquire never blocks.
type Semaphore struct {
	slots chan struct{}
}

func NewSemaphore(maxConnections int) *Semaphore {
	return &Semaphore{
		slots: make(chan struct{}, maxConnections),
	}
}

func (s *Semaphore) Acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

func (s *Semaphore) InUse() int {
	return len(s.slots)
}
