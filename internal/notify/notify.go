// Package notify implements a subscriber list with symmetric
// subscribe/unsubscribe.
package notify

import "sync"

// List holds callbacks for one kind of event. Callbacks run on the
// notifying goroutine, outside the list's lock, so a callback may
// unsubscribe itself or others.
type List[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(T)
	ids  []uint64 // subscription order
}

// Subscribe registers fn and returns the function that removes it.
// The returned function is idempotent.
func (l *List[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[uint64]func(T))
	}
	l.next++
	id := l.next
	l.subs[id] = fn
	l.ids = append(l.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
	for i, v := range l.ids {
		if v == id {
			l.ids = append(l.ids[:i], l.ids[i+1:]...)
			break
		}
	}
}

// Notify calls every subscriber with v in subscription order.
func (l *List[T]) Notify(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.ids))
	for _, id := range l.ids {
		fns = append(fns, l.subs[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
