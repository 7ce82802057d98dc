// Package debounce coalesces bursts of requests into one delayed call.
//
// A Scheduler is trailing-edge: every Request restarts the quiet period, so
// the callback runs once, delay after the last request of a burst. The timer
// is a time.AfterFunc, so waiting does not hold a goroutine.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when Request is given a
// non-positive delay.
const DefaultDelay = 500 * time.Millisecond

// SchedulingError reports a broken scheduler contract: a second fire for the
// same armed timer, or use after Close. It is raised with panic and is not
// meant to be recovered.
type SchedulingError struct {
	Op string
}

func (e *SchedulingError) Error() string {
	return "debounce: scheduling contract violated: " + e.Op
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDefaultDelay sets the delay used when Request receives d <= 0.
func WithDefaultDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.defaultDelay = d
		}
	}
}

// Scheduler runs fn once per burst of Request calls.
type Scheduler struct {
	fn           func()
	defaultDelay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64 // generation of the most recently armed timer
	fired  uint64 // generation that last ran fn
	closed bool
}

// New creates a Scheduler that calls fn when an armed timer fires.
func New(fn func(), opts ...Option) *Scheduler {
	if fn == nil {
		fn = func() {}
	}
	s := &Scheduler{
		fn:           fn,
		defaultDelay: DefaultDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request arms the timer, or re-arms it if one is already pending.
// It is safe to call from any goroutine.
func (s *Scheduler) Request(delay time.Duration) {
	if delay <= 0 {
		delay = s.defaultDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		panic(&SchedulingError{Op: "request after close"})
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
}

// fire runs fn if gen is still the armed generation. A timer whose Stop
// came too late observes a newer generation (or a cleared timer) and exits.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if s.fired == gen {
		s.mu.Unlock()
		panic(&SchedulingError{Op: "double fire"})
	}
	if s.timer == nil {
		// Cancelled after the timer started firing.
		s.mu.Unlock()
		return
	}
	s.fired = gen
	s.timer = nil
	s.mu.Unlock()

	s.fn()
}

// Cancel stops a pending timer without running fn. It is a no-op when
// nothing is scheduled. A callback that already started is not interrupted.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close cancels any pending timer and disposes the scheduler. Further
// Request calls panic; Cancel and Close remain safe no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.closed = true
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Delay returns the default delay.
func (s *Scheduler) Delay() time.Duration {
	return s.defaultDelay
}
