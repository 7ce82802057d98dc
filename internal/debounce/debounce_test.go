package debounce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_CoalescesRapidRequests(t *testing.T) {
	var calls atomic.Int32
	var firedAt atomic.Int64
	s := New(func() {
		calls.Add(1)
		firedAt.Store(time.Now().UnixNano())
	})
	defer s.Close()

	delay := 50 * time.Millisecond
	var last time.Time
	for i := 0; i < 10; i++ {
		last = time.Now()
		s.Request(delay)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 callback invocation, got %d", n)
	}
	if got := time.Unix(0, firedAt.Load()); got.Sub(last) < delay {
		t.Errorf("fired %v after last request, want >= %v", got.Sub(last), delay)
	}
}

func TestScheduler_SpacedRequestsFireEach(t *testing.T) {
	var calls atomic.Int32
	s := New(func() { calls.Add(1) })
	defer s.Close()

	for i := 0; i < 3; i++ {
		s.Request(20 * time.Millisecond)
		time.Sleep(80 * time.Millisecond)
	}

	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 callback invocations, got %d", n)
	}
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	var called atomic.Bool
	s := New(func() { called.Store(true) })
	defer s.Close()

	s.Request(50 * time.Millisecond)
	if !s.Pending() {
		t.Fatal("expected pending timer after Request")
	}
	s.Cancel()
	if s.Pending() {
		t.Fatal("expected no pending timer after Cancel")
	}

	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not have been invoked after cancel")
	}
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	s := New(func() {})
	s.Cancel()
	s.Cancel()
	s.Close()
	s.Cancel()
	s.Close()
}

func TestScheduler_RearmsAfterFire(t *testing.T) {
	var calls atomic.Int32
	s := New(func() { calls.Add(1) })
	defer s.Close()

	s.Request(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if s.Pending() {
		t.Fatal("scheduled state should clear after fire")
	}
	s.Request(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 callback invocations, got %d", n)
	}
}

func TestScheduler_ConcurrentRequestsFireOnce(t *testing.T) {
	var calls atomic.Int32
	s := New(func() { calls.Add(1) })
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Request(40 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	time.Sleep(120 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}

func TestScheduler_CloseDuringFire(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s := New(func() {
		calls.Add(1)
		close(started)
		<-release
	})

	s.Request(5 * time.Millisecond)
	<-started
	// The callback already started; Close must not block on it or run it again.
	s.Close()
	close(release)

	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}

func TestScheduler_RequestAfterClosePanics(t *testing.T) {
	s := New(func() {})
	s.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on Request after Close")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %T is not an error", r)
		}
		var se *SchedulingError
		if !errors.As(err, &se) {
			t.Fatalf("panic value %v is not a SchedulingError", err)
		}
	}()
	s.Request(time.Millisecond)
}

func TestScheduler_DefaultDelay(t *testing.T) {
	s := New(nil)
	if s.Delay() != DefaultDelay {
		t.Errorf("expected default delay %v, got %v", DefaultDelay, s.Delay())
	}
	s = New(nil, WithDefaultDelay(20*time.Millisecond))
	if s.Delay() != 20*time.Millisecond {
		t.Errorf("delay = %v, want 20ms", s.Delay())
	}
}

func TestScheduler_NonPositiveDelayUsesDefault(t *testing.T) {
	var calls atomic.Int32
	s := New(func() { calls.Add(1) }, WithDefaultDelay(30*time.Millisecond))
	defer s.Close()

	s.Request(0)
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("fired before the default delay elapsed")
	}
	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}
