package api

import (
	"encoding/json"

	"github.com/starford/clustermap/internal/models"
)

// SubmitResultResponse is returned after a snapshot was accepted.
type SubmitResultResponse struct {
	Seq      int64  `json:"seq" example:"42" validate:"required"`
	Checksum string `json:"checksum" example:"9f86d0..." validate:"required"`
	// Stored is false when the snapshot equals the current one.
	Stored bool `json:"stored"`
}

// ResultListResponse wraps snapshot history, newest first.
type ResultListResponse struct {
	Results []models.Snapshot `json:"results" validate:"required"`
}

// SelectionRequest carries an opaque viewer selection payload.
type SelectionRequest struct {
	Selection json.RawMessage `json:"selection" validate:"required"`
}
