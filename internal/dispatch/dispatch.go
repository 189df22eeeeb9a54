// Package dispatch provides the single-consumer loop that marshals fetch
// completions back to the thread driving the display. Worker goroutines
// never invoke callbacks directly; they post them here and the owner of the
// loop runs them in order.
package dispatch

import (
	"context"
	"sync"
)

const defaultBuffer = 64

// Loop is a serialized callback queue. Post may be called from any
// goroutine; all posted functions run on the goroutine that called Run.
type Loop struct {
	funcs    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a Loop ready to accept posts. Posted functions are held
// until Run is called.
func NewLoop() *Loop {
	return &Loop{
		funcs: make(chan func(), defaultBuffer),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn for execution on the loop goroutine. Blocks when the
// queue is full; callbacks are never dropped. Posting after Stop is a no-op.
func (l *Loop) Post(fn func()) {
	// Checked up front: a two-way select picks randomly when both cases
	// are ready, which would let a post-Stop callback slip into the queue.
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case <-l.done:
	case l.funcs <- fn:
	}
}

// Run consumes posted functions until the context is canceled or Stop is
// called. It must be called from the goroutine that owns UI state.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.funcs:
			fn()
		}
	}
}

// Stop terminates the loop. Functions still queued are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}
