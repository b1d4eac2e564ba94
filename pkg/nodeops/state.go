// Readiness tracking for NotReady nodes.
//
// Overview:
// The ReadinessTracker holds, per node name, the time the node was first observed NotReady.
// This state is *ephemeral* and does not persist across restarts of the controller; after a
// restart every NotReady node starts a fresh grace period, which only ever delays a deletion.
//
// Tracking flow explained:
// 1. **NotReady sighting**:
//    - The first poll that sees a node NotReady stamps it with that poll's observation time.
//    - Later NotReady sightings never refresh the stamp (the clock is monotonic).
//
// 2. **Ready sighting**:
//    - A single Ready observation clears the stamp. There is no partial credit: the node has
//      to accumulate a full grace period again after its next NotReady sighting.
//
// 3. **Vanished node**:
//    - A tracked node missing from the current listing (deleted by us, by someone else, or
//      filtered out) loses its entry so no state dangles.
//
// The tracker is owned by the reconciliation loop and is not safe for concurrent use.

package nodeops

import (
	"maps"
	"sort"
	"time"
)

type TransitionType string

const (
	BecameNotReady TransitionType = "BecameNotReady"
	BecameReady    TransitionType = "BecameReady"
	Vanished       TransitionType = "Vanished"
)

// Transition describes a change in tracking state produced by Observe.
type Transition struct {
	Node string
	Type TransitionType
	// Since is the NotReady stamp the node had (BecameReady, Vanished) or was given (BecameNotReady).
	Since time.Time
}

type ReadinessTracker struct {
	notReadySince map[string]time.Time
}

func NewReadinessTracker() *ReadinessTracker {
	return &ReadinessTracker{notReadySince: make(map[string]time.Time)}
}

// Observe folds one complete poll into the tracker and returns the resulting
// transitions sorted by node name.
func (t *ReadinessTracker) Observe(observations []NodeObservation) []Transition {
	var transitions []Transition
	seen := make(map[string]struct{}, len(observations))

	for _, obs := range observations {
		seen[obs.Name] = struct{}{}
		since, tracked := t.notReadySince[obs.Name]
		switch {
		case obs.Ready && tracked:
			delete(t.notReadySince, obs.Name)
			transitions = append(transitions, Transition{Node: obs.Name, Type: BecameReady, Since: since})
		case !obs.Ready && !tracked:
			t.notReadySince[obs.Name] = obs.ObservedAt
			transitions = append(transitions, Transition{Node: obs.Name, Type: BecameNotReady, Since: obs.ObservedAt})
		}
	}

	for name, since := range t.notReadySince {
		if _, ok := seen[name]; ok {
			continue
		}
		delete(t.notReadySince, name)
		transitions = append(transitions, Transition{Node: name, Type: Vanished, Since: since})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Node < transitions[j].Node
	})
	return transitions
}

// NotReadySince returns the NotReady stamp for node, if it is tracked.
func (t *ReadinessTracker) NotReadySince(node string) (time.Time, bool) {
	since, ok := t.notReadySince[node]
	return since, ok
}

// Snapshot returns a copy of the tracked entries.
func (t *ReadinessTracker) Snapshot() map[string]time.Time {
	return maps.Clone(t.notReadySince)
}

// Forget drops a node, e.g. after its Node object was deleted.
func (t *ReadinessTracker) Forget(node string) {
	delete(t.notReadySince, node)
}

func (t *ReadinessTracker) Len() int {
	return len(t.notReadySince)
}
