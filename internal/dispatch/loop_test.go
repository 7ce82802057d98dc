package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_RunsInSubmissionOrder(t *testing.T) {
	l := NewLoop(8)
	defer l.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.Call(func() {})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d of 5", len(got))
	}
}

func TestLoop_SerializesWork(t *testing.T) {
	l := NewLoop(64)
	defer l.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Call(func() {
				n := running.Add(1)
				if n > maxRunning.Load() {
					maxRunning.Store(n)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
			})
		}()
	}
	wg.Wait()

	if maxRunning.Load() != 1 {
		t.Errorf("max concurrent work = %d, want 1", maxRunning.Load())
	}
}

func TestLoop_SubmitAfterClose(t *testing.T) {
	l := NewLoop(1)
	l.Close()
	l.Close()

	if l.Submit(func() { t.Error("work ran after close") }) {
		t.Error("Submit should report false after close")
	}
	if l.Call(func() {}) {
		t.Error("Call should report false after close")
	}
}

func TestLoop_CloseDropsQueuedWork(t *testing.T) {
	l := NewLoop(4)

	started := make(chan struct{})
	release := make(chan struct{})
	if !l.Submit(func() {
		close(started)
		<-release
	}) {
		t.Fatal("first Submit rejected")
	}
	<-started

	var ran atomic.Bool
	if !l.Submit(func() { ran.Store(true) }) {
		t.Fatal("queued Submit rejected")
	}

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()
	// Close must not return while work is running.
	select {
	case <-closed:
		t.Fatal("Close returned before running work finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-closed

	if ran.Load() {
		t.Error("queued work ran after Close")
	}
	if l.Submit(func() {}) {
		t.Error("Submit after Close reported true")
	}
}
