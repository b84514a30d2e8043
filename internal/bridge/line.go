package bridge

import (
	"context"
	"sync"
)

// Line is the shared INT line as reported by the bridge firmware. Edges are
// latched: an edge that arrives while nobody waits wakes the next waiter.
type Line struct {
	mu     sync.Mutex
	low    bool
	edge   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newLine() *Line {
	return &Line{
		edge:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// WaitForAnyEdge blocks until the line changes level, a result arrives, the
// bridge disconnects, or ctx ends.
func (l *Line) WaitForAnyEdge(ctx context.Context) error {
	select {
	case <-l.edge:
		return nil
	case <-l.closed:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Line) IsLow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.low
}

func (l *Line) set(low bool) {
	l.mu.Lock()
	changed := l.low != low
	l.low = low
	l.mu.Unlock()
	if changed {
		l.pulse()
	}
}

func (l *Line) pulse() {
	select {
	case l.edge <- struct{}{}:
	default:
	}
}

func (l *Line) close() { l.once.Do(func() { close(l.closed) }) }
