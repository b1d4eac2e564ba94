//go:build integration
// +build integration

package scenario

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	corefake "k8s.io/client-go/kubernetes/fake"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/docent-net/stale-node-controller/pkg/config"
	"github.com/docent-net/stale-node-controller/pkg/controller"
	"github.com/docent-net/stale-node-controller/pkg/nodeops"
)

var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// --- Node helpers ------------------------------------------------------------

func WorkerNode(name string) *v1.Node {
	return &v1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			UID:    types.UID(name + "-uid"),
			Labels: map[string]string{"node-role.kubernetes.io/worker": ""},
		},
		Status: v1.NodeStatus{
			Conditions: []v1.NodeCondition{{Type: v1.NodeReady, Status: v1.ConditionTrue}},
		},
	}
}

func ControlPlaneNode(name string) *v1.Node {
	n := WorkerNode(name)
	n.Labels = map[string]string{"node-role.kubernetes.io/control-plane": ""}
	return n
}

// --- Cluster -----------------------------------------------------------------

// Cluster is a fake API server plus a fake clock shared with the controller.
type Cluster struct {
	t      *testing.T
	Client *corefake.Clientset
	Clock  *testingclock.FakeClock
}

func NewCluster(t *testing.T, nodes ...*v1.Node) *Cluster {
	t.Helper()
	c := &Cluster{t: t, Client: corefake.NewSimpleClientset(), Clock: testingclock.NewFakeClock(Epoch)}
	for _, n := range nodes {
		_, err := c.Client.CoreV1().Nodes().Create(context.Background(), n, metav1.CreateOptions{})
		require.NoError(t, err)
	}
	return c
}

// Terminate simulates the VM behind name vanishing: the node controller in
// the control plane flips Ready to Unknown once the kubelet stops reporting.
func (c *Cluster) Terminate(name string) {
	c.setReady(name, v1.ConditionUnknown)
}

func (c *Cluster) Recover(name string) {
	c.setReady(name, v1.ConditionTrue)
}

func (c *Cluster) setReady(name string, status v1.ConditionStatus) {
	c.t.Helper()
	n, err := c.Client.CoreV1().Nodes().Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(c.t, err)
	n.Status.Conditions = []v1.NodeCondition{{Type: v1.NodeReady, Status: status}}
	_, err = c.Client.CoreV1().Nodes().UpdateStatus(context.Background(), n, metav1.UpdateOptions{})
	require.NoError(c.t, err)
}

// Counts returns the number of Node objects and how many of them are Ready.
func (c *Cluster) Counts() (total, ready int) {
	c.t.Helper()
	list, err := c.Client.CoreV1().Nodes().List(context.Background(), metav1.ListOptions{})
	require.NoError(c.t, err)
	for i := range list.Items {
		if nodeops.IsNodeReady(&list.Items[i]) {
			ready++
		}
	}
	return len(list.Items), ready
}

func (c *Cluster) RequireCounts(total, ready int) {
	c.t.Helper()
	gotTotal, gotReady := c.Counts()
	require.Equal(c.t, [2]int{total, ready}, [2]int{gotTotal, gotReady}, "(total, ready)")
}

// --- Reconciler wiring -------------------------------------------------------

func MinimalConfig(threshold, pollInterval time.Duration) *config.Config {
	cfg := &config.Config{
		NotReadyDuration: threshold,
		PollInterval:     pollInterval,
		Backoff:          config.BackoffConfig{Initial: pollInterval, Max: 4 * pollInterval, Jitter: 0.01},
	}
	if err := cfg.ApplyDefaultsAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

func NewReconciler(cfg *config.Config, c *Cluster, opts ...controller.ReconcilerOption) *controller.Reconciler {
	opts = append([]controller.ReconcilerOption{controller.WithClock(c.Clock)}, opts...)
	return controller.NewReconciler(cfg, c.Client, opts...)
}

// DeleteRecorder wraps a deleter and remembers every node it was asked to delete.
type DeleteRecorder struct {
	Next nodeops.NodeDeleter

	mu    sync.Mutex
	calls []string
}

func (d *DeleteRecorder) DeleteNode(ctx context.Context, node nodeops.NodeObservation) (nodeops.DeleteResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, node.Name)
	d.mu.Unlock()
	return d.Next.DeleteNode(ctx, node)
}

func (d *DeleteRecorder) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
