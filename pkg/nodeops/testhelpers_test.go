package nodeops_test

import (
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

func nodeWithStatus(name string, status v1.ConditionStatus) *v1.Node {
	return &v1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, UID: types.UID(name + "-uid")},
		Status: v1.NodeStatus{
			Conditions: []v1.NodeCondition{{Type: v1.NodeReady, Status: status}},
		},
	}
}

func readyNode(name string) *v1.Node    { return nodeWithStatus(name, v1.ConditionTrue) }
func notReadyNode(name string) *v1.Node { return nodeWithStatus(name, v1.ConditionFalse) }
