package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/fake"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/docent-net/stale-node-controller/pkg/config"
	"github.com/docent-net/stale-node-controller/pkg/controller"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func node(name string, status v1.ConditionStatus) *v1.Node {
	return &v1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, UID: types.UID(name + "-uid")},
		Status: v1.NodeStatus{
			Conditions: []v1.NodeCondition{{Type: v1.NodeReady, Status: status}},
		},
	}
}

func testConfig(t *testing.T, threshold, pollInterval time.Duration) *config.Config {
	t.Helper()
	cfg := &config.Config{NotReadyDuration: threshold, PollInterval: pollInterval}
	require.NoError(t, cfg.ApplyDefaultsAndValidate())
	return cfg
}

type harness struct {
	t      *testing.T
	client *fake.Clientset
	clock  *testingclock.FakeClock
	r      *controller.Reconciler
}

func newHarness(t *testing.T, cfg *config.Config, nodes ...*v1.Node) *harness {
	t.Helper()
	client := fake.NewSimpleClientset()
	for _, n := range nodes {
		_, err := client.CoreV1().Nodes().Create(context.Background(), n, metav1.CreateOptions{})
		require.NoError(t, err)
	}
	clk := testingclock.NewFakeClock(epoch)
	return &harness{
		t:      t,
		client: client,
		clock:  clk,
		r:      controller.NewReconciler(cfg, client, controller.WithClock(clk)),
	}
}

// at moves the clock to epoch+offset and runs one cycle.
func (h *harness) at(offset time.Duration) error {
	h.t.Helper()
	h.clock.SetTime(epoch.Add(offset))
	return h.r.Reconcile(context.Background())
}

func (h *harness) setReady(name string, status v1.ConditionStatus) {
	h.t.Helper()
	n, err := h.client.CoreV1().Nodes().Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(h.t, err)
	n.Status.Conditions = []v1.NodeCondition{{Type: v1.NodeReady, Status: status}}
	_, err = h.client.CoreV1().Nodes().Update(context.Background(), n, metav1.UpdateOptions{})
	require.NoError(h.t, err)
}

func (h *harness) exists(name string) bool {
	h.t.Helper()
	_, err := h.client.CoreV1().Nodes().Get(context.Background(), name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false
	}
	require.NoError(h.t, err)
	return true
}
