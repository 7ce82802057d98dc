package store

import (
	"context"

	"github.com/starford/clustermap/internal/models"
)

// SnapshotStore defines the snapshot history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type SnapshotStore interface {
	Save(ctx context.Context, source string, r *models.ClusterResult) (*models.Snapshot, bool, error)
	Current(ctx context.Context) (*models.Snapshot, error)
	CurrentResult(ctx context.Context) (*models.ClusterResult, error)
	Get(ctx context.Context, seq int64) (*models.Snapshot, error)
	List(ctx context.Context, limit int) ([]models.Snapshot, error)
	Prune(ctx context.Context, keep int) (int64, error)
	Subscribe(fn func()) (unsubscribe func())
	Close() error
}

// Verify *DB satisfies SnapshotStore at compile time.
var _ SnapshotStore = (*DB)(nil)
