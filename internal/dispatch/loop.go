// Package dispatch provides the single execution context that owns the
// display tree. Work submitted from any goroutine runs there in order.
package dispatch

import (
	"sync/atomic"
)

// Loop runs submitted functions one at a time on its own goroutine.
//
// Concurrency model: the loop goroutine is the only one that executes work,
// so state touched only from submitted functions needs no locking.
type Loop struct {
	workCh  chan func()
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewLoop starts a Loop with the given queue capacity.
func NewLoop(queue int) *Loop {
	if queue <= 0 {
		queue = 64
	}
	l := &Loop{
		workCh:  make(chan func(), queue),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		// Stop wins over queued work.
		select {
		case <-l.stopCh:
			return
		default:
		}
		select {
		case <-l.stopCh:
			return
		case fn := <-l.workCh:
			fn()
		}
	}
}

// Submit enqueues fn. It blocks while the queue is full and returns false
// once the loop is closed.
//
// True means fn was queued, not that it will run: a Close racing with
// Submit may still drop it. Use Call to wait for completion.
func (l *Loop) Submit(fn func()) bool {
	select {
	case <-l.stopCh:
		return false
	default:
	}
	select {
	case l.workCh <- fn:
		return true
	case <-l.stopCh:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish. It returns false if
// the loop closed before fn ran.
func (l *Loop) Call(fn func()) bool {
	done := make(chan struct{})
	if !l.Submit(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.stopped:
		// fn may have been queued behind the stop signal.
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Close stops the loop after the function currently running, if any.
// Queued work that has not started is dropped. Close is idempotent and
// waits for the loop goroutine to exit.
func (l *Loop) Close() {
	if l.closed.CompareAndSwap(false, true) {
		close(l.stopCh)
	}
	<-l.stopped
}
