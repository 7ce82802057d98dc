// Package ingest reads clustering snapshots dropped into an inbox directory.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/clustermap/internal/models"
)

// ErrEmpty is returned for a file with no content.
var ErrEmpty = errors.New("ingest: empty document")

// Decode parses a snapshot document. The format is chosen by the file
// extension of name: .json, or .yaml/.yml.
func Decode(name string, data []byte) (*models.ClusterResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var r models.ClusterResult
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("ingest: decode json %s: %w", name, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("ingest: decode yaml %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("ingest: unsupported format %q", ext)
	}
	return &r, nil
}
