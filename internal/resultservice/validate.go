package resultservice

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/models"
)

// ValidationError describes the first malformed entry of a result.
type ValidationError struct {
	Path string // e.g. "clusters[0].subclusters[2]"
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets callers match any ValidationError with apperr.ErrInvalidResult.
func (e *ValidationError) Is(target error) bool {
	return target == apperr.ErrInvalidResult
}

// Validate checks the shape of r: no nil entries, non-empty ids, and no
// cluster id repeated on its own nesting path. Results that pass always
// synchronize.
func Validate(r *models.ClusterResult) error {
	if r == nil {
		return &ValidationError{Path: "result", Err: errors.New("is nil")}
	}
	onPath := make(map[string]struct{})
	for i, c := range r.Clusters {
		if err := validateCluster(c, fmt.Sprintf("clusters[%d]", i), onPath); err != nil {
			return err
		}
	}
	return nil
}

func validateCluster(c *models.Cluster, path string, onPath map[string]struct{}) error {
	if c == nil {
		return &ValidationError{Path: path, Err: errors.New("is nil")}
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Subclusters, validation.Each(validation.NotNil)),
		validation.Field(&c.Items, validation.Each(validation.NotNil)),
	)
	if err != nil {
		return &ValidationError{Path: path, Err: err}
	}

	// Keyed by id, as tree.Synchronizer detects cycles.
	if _, ok := onPath[c.ID]; ok {
		return &ValidationError{Path: path, Err: fmt.Errorf("cluster %q contains itself", c.ID)}
	}
	onPath[c.ID] = struct{}{}
	defer delete(onPath, c.ID)

	for i, sub := range c.Subclusters {
		if err := validateCluster(sub, fmt.Sprintf("%s.subclusters[%d]", path, i), onPath); err != nil {
			return err
		}
	}
	for i, it := range c.Items {
		if err := validation.ValidateStruct(it, validation.Field(&it.ID, validation.Required)); err != nil {
			return &ValidationError{Path: fmt.Sprintf("%s.items[%d]", path, i), Err: err}
		}
	}
	return nil
}
