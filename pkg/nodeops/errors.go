package nodeops

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ClusterUnreachableError wraps any failure talking to the API server. It is
// transient from the loop's point of view: log, back off, try again.
type ClusterUnreachableError struct {
	Op  string
	Err error
}

func (e *ClusterUnreachableError) Error() string {
	return fmt.Sprintf("cluster unreachable during %s: %v", e.Op, e.Err)
}

func (e *ClusterUnreachableError) Unwrap() error {
	return e.Err
}

func unreachable(op string, err error) error {
	return &ClusterUnreachableError{Op: op, Err: err}
}

// IsClusterUnreachable reports whether err (or anything it wraps) is a ClusterUnreachableError.
func IsClusterUnreachable(err error) bool {
	var target *ClusterUnreachableError
	return errors.As(err, &target)
}

// IsAuthError reports whether the API rejected our credentials or RBAC binding.
// Operators need to fix these; the loop still keeps retrying since tokens get rotated.
func IsAuthError(err error) bool {
	return apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err)
}
