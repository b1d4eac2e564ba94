package events

import (
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/tools/record"
)

const (
	ReasonDeletedNotReadyNode = "DeletedNotReadyNode"
	ReasonDeleteNodeFailed    = "DeleteNodeFailed"
)

// NewRecorder returns a recorder that writes core/v1 Events through client.
// Call the returned stop function on shutdown to flush and release the broadcaster.
func NewRecorder(client kubernetes.Interface, component string) (record.EventRecorder, func()) {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: client.CoreV1().Events("")})
	recorder := broadcaster.NewRecorder(scheme.Scheme, v1.EventSource{Component: component})
	return recorder, broadcaster.Shutdown
}

// NodeRef builds an event target for a node that may no longer exist.
func NodeRef(name string, uid types.UID) *v1.ObjectReference {
	return &v1.ObjectReference{
		APIVersion: "v1",
		Kind:       "Node",
		Name:       name,
		UID:        uid,
	}
}
