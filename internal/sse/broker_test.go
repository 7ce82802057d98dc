package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/clustermap/internal/tree"
)

func sampleTree() *tree.Node {
	root := tree.NewGroup("", tree.RootLabel)
	g := tree.NewGroup("1", "Go")
	root.Add(g)
	g.Add(tree.NewLeaf("10", "[10] Effective Go"))
	return root
}

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

// drain returns every message currently buffered in ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishTree(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	root := sampleTree()
	if err := b.Publish(root); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	s := receive(t, ch)
	if !strings.Contains(s, "event: "+EventTreePublished) {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"label":"[10] Effective Go"`) {
		t.Errorf("missing leaf in %q", s)
	}
	if b.LastTree() != root {
		t.Error("LastTree should return the published tree")
	}
}

func TestLateSubscriberGetsLastTree(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	_ = b.Publish(tree.NewGroup("", "first"))
	_ = b.Publish(sampleTree())

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	s := receive(t, ch)
	if !strings.Contains(s, tree.RootLabel) || strings.Contains(s, `"first"`) {
		t.Errorf("late subscriber got %q, want latest tree", s)
	}
	if extra := drain(ch); len(extra) != 0 {
		t.Errorf("unexpected extra messages %v", extra)
	}
}

func TestPublishNilTree(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if err := b.Publish(nil); err == nil {
		t.Error("expected error for nil tree")
	}
	if b.LastTree() != nil {
		t.Error("nil publish should not replace last tree")
	}
}

func TestSelectionThrottle(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First selection goes out immediately; the next two fall in the
	// throttle window and only the latest is emitted when it ends.
	b.SelectionChanged(map[string]string{"id": "1"})
	b.SelectionChanged(map[string]string{"id": "2"})
	b.SelectionChanged(map[string]string{"id": "3"})

	first := receive(t, ch)
	if !strings.Contains(first, "event: "+EventSelectionChanged) || !strings.Contains(first, `"id":"1"`) {
		t.Errorf("first = %q", first)
	}
	time.Sleep(50 * time.Millisecond)
	if got := drain(ch); len(got) != 0 {
		t.Fatalf("throttled selections leaked early: %v", got)
	}

	trailing := receive(t, ch)
	if !strings.Contains(trailing, `"id":"3"`) {
		t.Errorf("trailing = %q, want latest selection", trailing)
	}
	time.Sleep(250 * time.Millisecond)
	if got := drain(ch); len(got) != 0 {
		t.Errorf("unexpected extra selections: %v", got)
	}
}

func TestPublishInboxEvent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishInboxEvent("rejected", "bad.json")
	s := receive(t, ch)
	if !strings.Contains(s, "event: inbox.rejected") || !strings.Contains(s, `"path":"bad.json"`) {
		t.Errorf("got %q", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	_ = b.Publish(sampleTree())
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "event: "+EventTreePublished) {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Client buffer holds 64; the rest must not block the loop.
	for i := 0; i < 70; i++ {
		b.PublishInboxEvent("stored", "x.json")
	}
	if b.ClientCount() != 1 {
		t.Error("broker loop stalled")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	if err := b.Publish(sampleTree()); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
	b.SelectionChanged("ignored")
	b.PublishInboxEvent("stored", "x.json")
}
