// Package testutil provides shared test helpers for snapshot stores and inboxes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/clustermap/internal/models"
	"github.com/starford/clustermap/internal/storage"
	"github.com/starford/clustermap/internal/store"
)

// TestDB creates a temporary snapshot store that is automatically cleaned up.
func TestDB(t *testing.T, opts ...store.Option) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "clustermap-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, files
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SampleResult returns a small two-level result:
//
//	Languages
//	  Go
//	    [10] Effective Go
//	  [11] Tour
func SampleResult() *models.ClusterResult {
	return &models.ClusterResult{
		Query: "languages",
		Clusters: []*models.Cluster{{
			ID:    "1",
			Label: "Languages",
			Subclusters: []*models.Cluster{{
				ID:    "2",
				Label: "Go",
				Items: []*models.Item{{ID: "10", Fields: map[string]string{models.TitleField: "Effective Go"}}},
			}},
			Items: []*models.Item{{ID: "11", Fields: map[string]string{models.TitleField: "Tour"}}},
		}},
	}
}
