// Package resultservice validates and stores clustering snapshots and
// exposes the most recently published display tree.
package resultservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/models"
	"github.com/starford/clustermap/internal/store"
	"github.com/starford/clustermap/internal/tree"
)

// TreeSource returns the last published display tree, or nil.
type TreeSource interface {
	LastTree() *tree.Node
}

// Selector forwards a viewer selection to interested parties.
type Selector interface {
	Select(payload any)
}

// Service coordinates the snapshot store with the published tree.
type Service struct {
	store    store.SnapshotStore
	trees    TreeSource
	selector Selector
	logger   *slog.Logger
}

// NewService creates a new result service. trees and selector may be nil.
func NewService(st store.SnapshotStore, trees TreeSource, selector Selector, logger *slog.Logger) *Service {
	return &Service{store: st, trees: trees, selector: selector, logger: logger}
}

// Submit validates r and stores it as the current snapshot. Validation
// failures match apperr.ErrInvalidResult.
func (s *Service) Submit(ctx context.Context, source string, r *models.ClusterResult) (*models.Snapshot, bool, error) {
	if err := Validate(r); err != nil {
		return nil, false, err
	}
	snap, stored, err := s.store.Save(ctx, source, r)
	if err != nil {
		return nil, false, fmt.Errorf("resultservice: save: %w", err)
	}
	s.logger.Debug("resultservice: submitted",
		slog.String("source", source),
		slog.Int64("seq", snap.Seq),
		slog.Bool("stored", stored))
	return snap, stored, nil
}

// Current returns the newest snapshot.
func (s *Service) Current(ctx context.Context) (*models.Snapshot, error) {
	return s.store.Current(ctx)
}

// Get returns the snapshot with sequence number seq.
func (s *Service) Get(ctx context.Context, seq int64) (*models.Snapshot, error) {
	return s.store.Get(ctx, seq)
}

// History lists snapshot metadata, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.Snapshot, error) {
	return s.store.List(ctx, limit)
}

// Tree returns the last published display tree, or apperr.ErrNotFound when
// nothing has been published yet.
func (s *Service) Tree() (*tree.Node, error) {
	if s.trees == nil {
		return nil, apperr.ErrNotFound
	}
	root := s.trees.LastTree()
	if root == nil {
		return nil, apperr.ErrNotFound
	}
	return root, nil
}

// BuildTree synchronizes the current snapshot into a fresh display tree,
// independent of what the renderer last published.
func (s *Service) BuildTree(ctx context.Context) (*tree.Node, *models.Snapshot, error) {
	snap, err := s.store.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	root, err := tree.NewSynchronizer().Synchronize(snap.Result)
	if err != nil {
		return nil, nil, fmt.Errorf("resultservice: build tree for %d: %w", snap.Seq, err)
	}
	return root, snap, nil
}

// Select forwards a viewer selection. It is a no-op without a selector.
func (s *Service) Select(payload any) {
	if s.selector != nil {
		s.selector.Select(payload)
	}
}
