package nodeops

import (
	"context"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

type DeleteResult string

const (
	// Deleted means the API accepted the delete.
	Deleted DeleteResult = "deleted"
	// AlreadyGone means someone else removed the node first; treated as success.
	AlreadyGone DeleteResult = "already_gone"
	// Skipped means the name now belongs to a different Node object (UID mismatch).
	Skipped DeleteResult = "skipped"
	// DryRun means no request was sent.
	DryRun DeleteResult = "dry_run"
	// Failed means the delete errored and the node should stay tracked.
	Failed DeleteResult = "failed"
)

// NodeDeleter removes a Node object. Deletion must be idempotent.
type NodeDeleter interface {
	DeleteNode(ctx context.Context, node NodeObservation) (DeleteResult, error)
}

// APIDeleter deletes Node objects through the core API.
type APIDeleter struct {
	Client  kubernetes.Interface
	Timeout time.Duration
	DryRun  bool
}

func NewAPIDeleter(client kubernetes.Interface, timeout time.Duration, dryRun bool) *APIDeleter {
	return &APIDeleter{Client: client, Timeout: timeout, DryRun: dryRun}
}

func (d *APIDeleter) DeleteNode(ctx context.Context, node NodeObservation) (DeleteResult, error) {
	if d.DryRun {
		slog.Info("Dry-run: would delete node", "node", node.Name)
		return DryRun, nil
	}

	ctx, cancel := withTimeout(ctx, d.Timeout)
	defer cancel()

	opts := metav1.DeleteOptions{}
	if node.UID != "" {
		opts.Preconditions = metav1.NewUIDPreconditions(string(node.UID))
	}

	err := d.Client.CoreV1().Nodes().Delete(ctx, node.Name, opts)
	switch {
	case err == nil:
		return Deleted, nil
	case apierrors.IsNotFound(err):
		return AlreadyGone, nil
	case apierrors.IsConflict(err):
		// UID precondition failed: a new Node object registered under the same name.
		return Skipped, nil
	default:
		return Failed, unreachable("delete node "+node.Name, err)
	}
}
