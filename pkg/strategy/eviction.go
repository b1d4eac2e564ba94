package strategy

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// EvictionStrategy decides which tracked NotReady nodes may be deleted now.
type EvictionStrategy interface {
	// Eligible returns the names of nodes that may be deleted, sorted by name.
	Eligible(notReadySince map[string]time.Time, now time.Time) []string
	Name() string
}

// NotReadyTimeout makes every node eligible once it has been NotReady for at
// least Threshold. Nodes are judged independently: there is no per-cycle limit
// and no cluster-wide quorum.
type NotReadyTimeout struct {
	Threshold time.Duration
}

func (s *NotReadyTimeout) Name() string {
	return "NotReadyTimeout"
}

func (s *NotReadyTimeout) Eligible(notReadySince map[string]time.Time, now time.Time) []string {
	eligible := lo.Keys(lo.PickBy(notReadySince, func(_ string, since time.Time) bool {
		return s.isEligible(since, now)
	}))
	sort.Strings(eligible)
	return eligible
}

// Remaining returns how long a node stamped at since still has to wait.
func (s *NotReadyTimeout) Remaining(since, now time.Time) time.Duration {
	if s.isEligible(since, now) {
		return 0
	}
	return max(s.Threshold-now.Sub(since), 0)
}

// A stamp taken this very cycle has zero elapsed time and is never eligible,
// however small the threshold.
func (s *NotReadyTimeout) isEligible(since, now time.Time) bool {
	elapsed := now.Sub(since)
	return elapsed > 0 && elapsed >= s.Threshold
}
