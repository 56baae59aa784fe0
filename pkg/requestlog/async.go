package requestlog

import (
	"sync"
	"sync/atomic"
)

// DefaultAsyncBuffer is the queue length used by NewAsync when none is given.
const DefaultAsyncBuffer = 256

// Async forwards records to another Sink on a background goroutine.
// Add never blocks: when the queue is full the record is dropped and counted.
type Async struct {
	next    Sink
	queue   chan Record
	dropped atomic.Uint64

	mu     sync.RWMutex // guards closed against concurrent Add
	closed bool
	done   chan struct{}
}

// NewAsync starts forwarding to next with a queue of size buffer.
// Close must be called to drain the queue and stop the goroutine.
func NewAsync(next Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	a := &Async{
		next:  next,
		queue: make(chan Record, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.forward(rec)
	}
}

// forward isolates the caller from a panicking sink.
func (a *Async) forward(rec Record) {
	defer func() { _ = recover() }()
	a.next.Add(rec)
}

// Add enqueues rec without blocking.
func (a *Async) Add(rec Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded because the queue was
// full or the sink was closed.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting records, delivers those already queued, and waits
// for the forwarding goroutine to exit. Safe to call multiple times.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
