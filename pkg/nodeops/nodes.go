package nodeops

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"
)

// ClusterStateReader returns the current set of nodes with their readiness.
// Failures are reported as *ClusterUnreachableError.
type ClusterStateReader interface {
	ReadNodes(ctx context.Context) ([]NodeObservation, error)
}

// ListReader polls the API server with a plain node List on every call.
type ListReader struct {
	Client  kubernetes.Interface
	Filter  ManagedNodeFilter
	Timeout time.Duration
	Clock   clock.PassiveClock
}

func NewListReader(client kubernetes.Interface, filter ManagedNodeFilter, timeout time.Duration, clk clock.PassiveClock) *ListReader {
	return &ListReader{Client: client, Filter: filter, Timeout: timeout, Clock: clk}
}

func (r *ListReader) ReadNodes(ctx context.Context) ([]NodeObservation, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	list, err := r.Client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, unreachable("list nodes", err)
	}
	return Observe(r.Filter.Filter(list.Items), now(r.Clock)), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func now(clk clock.PassiveClock) time.Time {
	if clk == nil {
		return time.Now()
	}
	return clk.Now()
}
