package election

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/uuid"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/docent-net/stale-node-controller/pkg/config"
)

// ErrLeaseLost is returned by Run when another replica took over the lease.
// The caller should exit so a restarted process begins with an empty tracker.
var ErrLeaseLost = errors.New("leader lease lost")

// Elector runs the reconcile loop only while holding a coordination.k8s.io Lease.
// With leader election disabled it runs the loop directly.
type Elector struct {
	Cfg      config.LeaderElectionConfig
	Client   kubernetes.Interface
	Identity string

	leading atomic.Bool
}

func New(client kubernetes.Interface, cfg config.LeaderElectionConfig, identity string) *Elector {
	return &Elector{Cfg: cfg, Client: client, Identity: identity}
}

// Identity returns a holder identity unique to this process.
func Identity() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("reading hostname: %w", err)
	}
	return host + "_" + string(uuid.NewUUID()), nil
}

// IsLeader reports whether this replica is the one polling and deleting.
func (e *Elector) IsLeader() bool {
	return e.leading.Load()
}

// Run blocks until ctx is cancelled, the lease is lost, or run returns.
func (e *Elector) Run(ctx context.Context, run func(context.Context) error) error {
	if !e.Cfg.Enabled {
		e.leading.Store(true)
		defer e.leading.Store(false)
		return run(ctx)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta:  metav1.ObjectMeta{Name: e.Cfg.ID, Namespace: e.Cfg.Namespace},
		Client:     e.Client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{Identity: e.Identity},
	}

	electionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(chan struct{})
	done := make(chan struct{})
	var (
		runErr   error
		finished bool
	)

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		Name:            e.Cfg.ID,
		LeaseDuration:   e.Cfg.LeaseDuration,
		RenewDeadline:   e.Cfg.RenewDeadline,
		RetryPeriod:     e.Cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(leaderCtx context.Context) {
				defer close(done)
				// A loop that returns on its own gives the lease up.
				defer cancel()
				e.leading.Store(true)
				close(started)
				slog.Info("Acquired leader lease", "lease", e.Cfg.Namespace+"/"+e.Cfg.ID, "identity", e.Identity)
				runErr = run(leaderCtx)
				finished = leaderCtx.Err() == nil
			},
			OnStoppedLeading: func() {
				if e.leading.Swap(false) {
					slog.Info("Stopped leading", "identity", e.Identity)
				}
			},
			OnNewLeader: func(identity string) {
				if identity != e.Identity {
					slog.Info("Waiting for leader lease", "leader", identity)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configuring leader election: %w", err)
	}

	le.Run(electionCtx)

	select {
	case <-started:
	default:
		// Cancelled before ever leading.
		return nil
	}
	<-done
	if runErr != nil || finished || ctx.Err() != nil {
		return runErr
	}
	return ErrLeaseLost
}
