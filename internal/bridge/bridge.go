// Package bridge keeps a renderer's display tree in sync with a result
// producer.
//
// Producer notifications are coalesced by a debounce.Scheduler. When it
// fires, the refresh runs on the dispatch.Loop: it re-reads the producer's
// current result (intermediate results may be skipped), rebuilds the tree
// with a fresh tree.Synchronizer pass, and publishes it.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/clustermap/internal/debounce"
	"github.com/starford/clustermap/internal/dispatch"
	"github.com/starford/clustermap/internal/models"
	"github.com/starford/clustermap/internal/tree"
)

// DefaultDelay is the quiet period between the last update and a refresh.
const DefaultDelay = 500 * time.Millisecond

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("bridge: closed")

// Producer supplies clustering results and update notifications.
type Producer interface {
	CurrentResult(ctx context.Context) (*models.ClusterResult, error)
	Subscribe(fn func()) (unsubscribe func())
}

// Renderer consumes completed display trees.
type Renderer interface {
	Publish(root *tree.Node) error
	SelectionChanged(payload any)
}

// SelectionSource emits opaque selection payloads.
type SelectionSource interface {
	SubscribeSelection(fn func(payload any)) (unsubscribe func())
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDelay sets the refresh quiet period.
func WithDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSelectionSource forwards selection changes from src to the renderer.
func WithSelectionSource(src SelectionSource) Option {
	return func(b *Bridge) {
		b.selection = src
	}
}

// Bridge wires a Producer to a Renderer.
type Bridge struct {
	producer  Producer
	renderer  Renderer
	loop      *dispatch.Loop
	selection SelectionSource
	delay     time.Duration
	logger    *slog.Logger

	synchronizer *tree.Synchronizer // used on the loop only
	scheduler    *debounce.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the lifecycle fields and is held across every Publish, so
	// once Close returns nothing is published again.
	mu          sync.Mutex
	started     bool
	closed      bool
	unsubscribe []func()
	published   int
}

// New creates a Bridge. Call Start to begin listening.
func New(producer Producer, renderer Renderer, loop *dispatch.Loop, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		producer:     producer,
		renderer:     renderer,
		loop:         loop,
		delay:        DefaultDelay,
		logger:       slog.Default(),
		synchronizer: tree.NewSynchronizer(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.scheduler = debounce.New(b.fire, debounce.WithDefaultDelay(b.delay))
	return b
}

// Start subscribes to the producer (and selection source, if any). When the
// producer already holds a result, a refresh is scheduled right away.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.unsubscribe = append(b.unsubscribe, b.producer.Subscribe(b.onResultUpdated))
	if b.selection != nil {
		b.unsubscribe = append(b.unsubscribe, b.selection.SubscribeSelection(b.onSelection))
	}
	b.mu.Unlock()

	current, err := b.producer.CurrentResult(ctx)
	if err != nil {
		b.logger.Warn("bridge: initial result unavailable", slog.String("error", err.Error()))
		return nil
	}
	if current != nil {
		b.onResultUpdated()
	}
	b.logger.Info("bridge: started", slog.Duration("delay", b.delay))
	return nil
}

// onResultUpdated runs on the producer's goroutine.
func (b *Bridge) onResultUpdated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.scheduler.Request(b.delay)
}

// fire runs on the scheduler's timer goroutine and hands the refresh to
// the loop.
func (b *Bridge) fire() {
	if !b.loop.Submit(b.refresh) {
		b.logger.Debug("bridge: loop closed, refresh dropped")
	}
}

// refresh runs on the loop.
func (b *Bridge) refresh() {
	logger := b.logger.With(slog.String("pass", uuid.NewString()))
	if b.isClosed() {
		return
	}
	start := time.Now()

	result, err := b.producer.CurrentResult(b.ctx)
	if err != nil {
		logger.Warn("bridge: fetch current result failed", slog.String("error", err.Error()))
		return
	}
	if result == nil {
		logger.Debug("bridge: no result to render")
		return
	}

	root, err := b.synchronizer.Synchronize(result)
	if err != nil {
		logger.Warn("bridge: synchronize failed", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		logger.Debug("bridge: closed, tree discarded")
		return
	}
	if err := b.renderer.Publish(root); err != nil {
		logger.Warn("bridge: publish failed", slog.String("error", err.Error()))
		return
	}
	b.published++

	stats := b.synchronizer.LastStats()
	logger.Info("bridge: published",
		slog.Int("groups", stats.Groups),
		slog.Int("leaves", stats.Leaves),
		slog.Int("reused", stats.Reused),
		slog.Duration("took", time.Since(start)))
}

// onSelection runs on the selection source's goroutine.
func (b *Bridge) onSelection(payload any) {
	if b.isClosed() {
		return
	}
	b.loop.Submit(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		b.renderer.SelectionChanged(payload)
	})
}

// Close unsubscribes from every source and cancels any pending refresh. A
// refresh already running finishes without publishing. Close is idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubs := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	b.scheduler.Close()
	b.cancel()
	b.logger.Info("bridge: closed")
}

// Pending reports whether a refresh is scheduled.
func (b *Bridge) Pending() bool {
	return b.scheduler.Pending()
}

// Published returns the number of trees published so far.
func (b *Bridge) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// Stats returns the statistics of the last successful synchronization. It
// waits for the loop, so work running on the loop must not call it. ok is
// false when the loop has stopped.
func (b *Bridge) Stats() (stats tree.Stats, ok bool) {
	ok = b.loop.Call(func() {
		stats = b.synchronizer.LastStats()
	})
	return stats, ok
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
