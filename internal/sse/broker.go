// Package sse publishes display trees and viewer events to browsers over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/clustermap/internal/tree"
)

// Event types.
const (
	EventTreePublished    = "tree.published"
	EventSelectionChanged = "selection.changed"
	EventInboxPrefix      = "inbox."
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("sse: broker closed")

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type inboxEventReq struct {
	kind string
	path string
}

// Broker manages SSE client connections and broadcasts events. It is the
// renderer of the refresh bridge: every published tree is sent to all
// clients and replayed to clients that connect later.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients, the encoded last tree, the selection throttle). Public
// methods communicate with this loop through channels.
type Broker struct {
	selectionMin time.Duration
	last         atomic.Pointer[tree.Node]

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	treeCh        chan []byte
	selectionCh   chan any
	inboxCh       chan inboxEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. Selection events closer together than
// selectionThrottle are coalesced into the latest one.
func NewBroker(selectionThrottle time.Duration) *Broker {
	if selectionThrottle <= 0 {
		selectionThrottle = 100 * time.Millisecond
	}

	b := &Broker{
		selectionMin:  selectionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		treeCh:        make(chan []byte),
		selectionCh:   make(chan any, 256),
		inboxCh:       make(chan inboxEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastTree []byte

	var lastSelection time.Time
	var pendingSelection any
	var hasPending bool
	var selectionTimer *time.Timer
	var selectionDue <-chan time.Time

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}
	broadcast := func(event Event) {
		raw, err := encode(event.Type, event.Data)
		if err != nil {
			return
		}
		send(raw)
	}
	emitSelection := func(payload any) {
		lastSelection = time.Now()
		broadcast(Event{Type: EventSelectionChanged, Data: payload})
	}

	for {
		select {
		case <-b.stopCh:
			if selectionTimer != nil {
				selectionTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if lastTree != nil {
				ch <- lastTree
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case raw := <-b.treeCh:
			lastTree = raw
			send(raw)

		case payload := <-b.selectionCh:
			if wait := b.selectionMin - time.Since(lastSelection); wait > 0 {
				pendingSelection, hasPending = payload, true
				if selectionDue == nil {
					selectionTimer = time.NewTimer(wait)
					selectionDue = selectionTimer.C
				}
				continue
			}
			emitSelection(payload)

		case <-selectionDue:
			selectionTimer, selectionDue = nil, nil
			if hasPending {
				emitSelection(pendingSelection)
				pendingSelection, hasPending = nil, false
			}

		case req := <-b.inboxCh:
			broadcast(Event{Type: EventInboxPrefix + req.kind, Data: map[string]string{"path": req.path}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. The last published
// tree, if any, is the first message on the channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends a completed display tree to all clients and keeps it as the
// last tree.
func (b *Broker) Publish(root *tree.Node) error {
	if root == nil {
		return errors.New("sse: nil tree")
	}
	if b.closed.Load() {
		return ErrClosed
	}
	raw, err := encode(EventTreePublished, root)
	if err != nil {
		return fmt.Errorf("sse: encode tree: %w", err)
	}
	select {
	case b.treeCh <- raw:
		b.last.Store(root)
		return nil
	case <-b.stopped:
		return ErrClosed
	}
}

// LastTree returns the most recently published tree, or nil.
func (b *Broker) LastTree() *tree.Node {
	return b.last.Load()
}

// SelectionChanged broadcasts a throttled selection.changed event.
func (b *Broker) SelectionChanged(payload any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.selectionCh <- payload:
	case <-b.stopped:
	}
}

// PublishInboxEvent broadcasts inbox.<kind> for a handled inbox file.
func (b *Broker) PublishInboxEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.inboxCh <- inboxEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
