package dispatch

import "sync"

// flowLocks hands out one mutex per flowId so that at most one control
// message mutates a given flow at a time. Locks are never evicted; the map
// grows with the number of distinct flowIds seen by this process, which is
// acceptable for worker-sized lifetimes.
type flowLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFlowLocks() *flowLocks {
	return &flowLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *flowLocks) lock(flowID string) func() {
	l.mu.Lock()
	m, ok := l.locks[flowID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[flowID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
