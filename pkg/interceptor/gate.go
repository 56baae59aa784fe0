package interceptor

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness signal. It starts pending and becomes ready
// exactly once; it never returns to pending. Waiters that arrive after Open
// return immediately.
type Gate struct {
	once  sync.Once
	ready chan struct{}
}

// NewGate returns a pending gate.
func NewGate() *Gate {
	return &Gate{ready: make(chan struct{})}
}

// OpenGate returns a gate that is already ready.
func OpenGate() *Gate {
	g := NewGate()
	g.Open()
	return g
}

// Open marks the gate ready and releases all waiters. Later calls are no-ops.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ready) })
}

// Ready reports whether Open has been called.
func (g *Gate) Ready() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the gate opens.
func (g *Gate) Done() <-chan struct{} {
	return g.ready
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	default:
	}
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
