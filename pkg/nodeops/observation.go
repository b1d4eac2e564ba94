package nodeops

import (
	"time"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// NodeObservation is one cluster member as seen by a single poll.
type NodeObservation struct {
	Name       string
	UID        types.UID
	Ready      bool
	ObservedAt time.Time
}

// IsNodeReady returns true if the node has a Ready condition with status True.
// False, Unknown and a missing condition all count as not ready.
func IsNodeReady(node *v1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == v1.NodeReady && cond.Status == v1.ConditionTrue {
			return true
		}
	}
	return false
}

// Observe converts nodes into observations stamped with now.
func Observe(nodes []v1.Node, now time.Time) []NodeObservation {
	out := make([]NodeObservation, 0, len(nodes))
	for i := range nodes {
		out = append(out, NodeObservation{
			Name:       nodes[i].Name,
			UID:        nodes[i].UID,
			Ready:      IsNodeReady(&nodes[i]),
			ObservedAt: now,
		})
	}
	return out
}
