package tree

import (
	"fmt"

	"github.com/starford/clustermap/internal/apperr"
)

// InvalidResultError reports a malformed or cyclic clustering result.
type InvalidResultError struct {
	Reason    string
	ClusterID string
}

func (e *InvalidResultError) Error() string {
	if e.ClusterID != "" {
		return fmt.Sprintf("tree: invalid result: %s (cluster %q)", e.Reason, e.ClusterID)
	}
	return "tree: invalid result: " + e.Reason
}

// Is lets errors.Is match apperr.ErrInvalidResult.
func (e *InvalidResultError) Is(target error) bool {
	return target == apperr.ErrInvalidResult
}
