package nodeops

import (
	"log/slog"

	v1 "k8s.io/api/core/v1"
)

var controlPlaneKeys = map[string]struct{}{
	"node-role.kubernetes.io/control-plane": {},
	"node-role.kubernetes.io/master":        {},
	"node-role.kubernetes.io/etcd":          {},
}

// ManagedNodeFilter decides which nodes the controller is allowed to act on.
type ManagedNodeFilter struct {
	AllowControlPlane bool
	IgnoreLabels      map[string]string
}

// Filter drops control-plane nodes (unless allowed), nodes matching IgnoreLabels
// and nodes that are already being deleted.
func (f ManagedNodeFilter) Filter(nodes []v1.Node) []v1.Node {
	var result []v1.Node
	for _, node := range nodes {
		if node.DeletionTimestamp != nil {
			slog.Debug("Skipping node already being deleted", "node", node.Name)
			continue
		}
		if !f.AllowControlPlane && IsControlPlaneNode(&node) {
			slog.Debug("Skipping control-plane node", "node", node.Name)
			continue
		}
		if ShouldIgnoreNodeDueToLabels(node, f.IgnoreLabels) {
			slog.Debug("Skipping node due to ignoreLabels", "node", node.Name)
			continue
		}
		result = append(result, node)
	}
	return result
}

// IsControlPlaneNode checks both role labels and role taints.
func IsControlPlaneNode(node *v1.Node) bool {
	for key := range node.Labels {
		if _, ok := controlPlaneKeys[key]; ok {
			return true
		}
	}
	for _, taint := range node.Spec.Taints {
		if _, ok := controlPlaneKeys[taint.Key]; ok {
			return true
		}
	}
	return false
}

func ShouldIgnoreNodeDueToLabels(node v1.Node, labels map[string]string) bool {
	for k, v := range labels {
		if val, ok := node.Labels[k]; ok && val == v {
			return true
		}
	}
	return false
}
