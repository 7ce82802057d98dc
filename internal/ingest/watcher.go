package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/debounce"
	"github.com/starford/clustermap/internal/models"
	"github.com/starford/clustermap/internal/storage"
)

const (
	// DefaultSettle is how long a file must stay unchanged before it is read.
	DefaultSettle = 250 * time.Millisecond

	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// Submitter accepts decoded snapshots.
type Submitter interface {
	Submit(ctx context.Context, source string, r *models.ClusterResult) (*models.Snapshot, bool, error)
}

// EventCallback is called after an inbox file was handled.
// kind is one of "stored", "unchanged", "rejected".
type EventCallback func(kind string, path string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the per-file quiet period.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithKeepProcessed controls whether accepted files are moved to processed/
// (true, the default) or deleted.
func WithKeepProcessed(keep bool) Option {
	return func(w *Watcher) {
		w.keepProcessed = keep
	}
}

// WithCallback registers cb for handled files.
func WithCallback(cb EventCallback) Option {
	return func(w *Watcher) {
		w.cb = cb
	}
}

// Watcher ingests snapshot files from an inbox directory. A burst of writes
// to one file is coalesced and the file is read once it settles.
type Watcher struct {
	files         storage.Provider
	root          string
	sub           Submitter
	logger        *slog.Logger
	settle        time.Duration
	keepProcessed bool
	cb            EventCallback

	mu      sync.Mutex
	pending map[string]*debounce.Scheduler
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Watcher for the inbox at root, accessed through files.
func New(files storage.Provider, root string, sub Submitter, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		files:         files,
		root:          root,
		sub:           sub,
		logger:        logger,
		settle:        DefaultSettle,
		keepProcessed: true,
		pending:       make(map[string]*debounce.Scheduler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sync ingests every snapshot file already in the inbox and returns how many
// were handled.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	metas, err := w.files.List("")
	if err != nil {
		return 0, err
	}
	for _, m := range metas {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.process(ctx, m.Path)
	}
	return len(metas), nil
}

// Run ingests existing files, then watches the inbox until ctx is cancelled.
// Files still settling when ctx ends are dropped; they are picked up by the
// next Sync.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: new watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", w.root, err)
	}
	defer w.stop()

	if n, err := w.Sync(ctx); err != nil {
		w.logger.Warn("ingest: initial sync failed", slog.String("error", err.Error()))
	} else if n > 0 {
		w.logger.Info("ingest: initial sync", slog.Int("files", n))
	}

	w.logger.Info("ingest: watching", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingest: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.root) || !storage.IsSnapshotFile(ev.Name) {
				continue
			}
			rel := filepath.Base(ev.Name)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.schedule(ctx, rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.forget(rel)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("ingest: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// schedule (re)arms the settle timer for rel.
func (w *Watcher) schedule(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	s, ok := w.pending[rel]
	if !ok {
		s = debounce.New(func() { w.settled(ctx, rel) }, debounce.WithDefaultDelay(w.settle))
		w.pending[rel] = s
	}
	s.Request(0)
}

// forget drops the settle timer of a file that left the inbox.
func (w *Watcher) forget(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.pending[rel]; ok {
		s.Close()
		delete(w.pending, rel)
	}
}

func (w *Watcher) settled(ctx context.Context, rel string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.process(ctx, rel)
}

// stop closes all settle timers and waits for in-flight files.
func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for rel, s := range w.pending {
		s.Close()
		delete(w.pending, rel)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// process reads, decodes and submits one inbox file, then moves it out of
// the inbox. Files that fail for transient reasons stay put.
func (w *Watcher) process(ctx context.Context, rel string) {
	log := w.logger.With(slog.String("path", rel))

	data, err := w.files.Read(rel)
	if err != nil {
		log.Debug("ingest: read failed", slog.String("error", err.Error()))
		return
	}

	r, err := Decode(rel, data)
	if err != nil {
		w.reject(log, rel, err)
		return
	}

	snap, stored, err := w.sub.Submit(ctx, "inbox:"+rel, r)
	switch {
	case errors.Is(err, apperr.ErrInvalidResult):
		w.reject(log, rel, err)
		return
	case err != nil:
		log.Warn("ingest: submit failed", slog.String("error", err.Error()))
		return
	}

	if err := w.archive(rel); err != nil {
		log.Warn("ingest: archive failed", slog.String("error", err.Error()))
	}

	kind := "unchanged"
	if stored {
		kind = "stored"
	}
	log.Info("ingest: "+kind, slog.Int64("seq", snap.Seq))
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

func (w *Watcher) archive(rel string) error {
	if !w.keepProcessed {
		return w.files.Delete(rel)
	}
	return w.files.Move(rel, path.Join(ProcessedDir, rel))
}

// reject moves rel to rejected/ next to a .error file holding the reason.
func (w *Watcher) reject(log *slog.Logger, rel string, cause error) {
	log.Warn("ingest: rejected", slog.String("error", cause.Error()))
	if err := w.files.Move(rel, path.Join(RejectedDir, rel)); err != nil {
		log.Warn("ingest: move to rejected failed", slog.String("error", err.Error()))
		return
	}
	if err := w.files.Write(path.Join(RejectedDir, rel+".error"), []byte(cause.Error()+"\n")); err != nil {
		log.Warn("ingest: write reject reason failed", slog.String("error", err.Error()))
	}
	if w.cb != nil {
		w.cb("rejected", rel)
	}
}
