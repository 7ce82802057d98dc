// Package storage gives path-safe access to the snapshot inbox directory.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/clustermap/internal/models"
)

// Provider is the interface for inbox file operations. All paths are
// relative to the inbox root.
type Provider interface {
	// List returns metadata for every snapshot file directly inside dir.
	List(dir string) ([]models.FileMetadata, error)
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	Delete(path string) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
}

// IsSnapshotFile reports whether name looks like a snapshot document.
// Hidden files, including in-progress atomic writes, never match.
func IsSnapshotFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
