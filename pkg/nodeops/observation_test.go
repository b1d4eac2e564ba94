package nodeops_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"

	"github.com/docent-net/stale-node-controller/pkg/nodeops"
)

func TestIsNodeReady(t *testing.T) {
	tests := []struct {
		name string
		node *v1.Node
		want bool
	}{
		{"ready true", nodeWithStatus("n", v1.ConditionTrue), true},
		{"ready false", nodeWithStatus("n", v1.ConditionFalse), false},
		{"ready unknown", nodeWithStatus("n", v1.ConditionUnknown), false},
		{"no conditions", &v1.Node{}, false},
		{"only other conditions", &v1.Node{Status: v1.NodeStatus{Conditions: []v1.NodeCondition{
			{Type: v1.NodeMemoryPressure, Status: v1.ConditionTrue},
		}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, nodeops.IsNodeReady(tt.node))
		})
	}
}

func TestObserve(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	obs := nodeops.Observe([]v1.Node{*readyNode("a"), *notReadyNode("b")}, now)

	require.Equal(t, []nodeops.NodeObservation{
		{Name: "a", UID: "a-uid", Ready: true, ObservedAt: now},
		{Name: "b", UID: "b-uid", Ready: false, ObservedAt: now},
	}, obs)
}
