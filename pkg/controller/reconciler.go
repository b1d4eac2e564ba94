package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	v1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/clock"

	"github.com/docent-net/stale-node-controller/pkg/config"
	"github.com/docent-net/stale-node-controller/pkg/events"
	"github.com/docent-net/stale-node-controller/pkg/metrics"
	"github.com/docent-net/stale-node-controller/pkg/nodeops"
	"github.com/docent-net/stale-node-controller/pkg/strategy"
	"github.com/docent-net/stale-node-controller/pkg/tracing"
)

// Reconciler deletes Node objects that stayed NotReady for longer than
// Cfg.NotReadyDuration. It never cordons, drains, or touches the compute
// behind a node.
//
// Tracker is owned by the goroutine calling Reconcile/Run; the poll status
// fields are guarded by mu so health probes can read them.
type Reconciler struct {
	Cfg      *config.Config
	Reader   nodeops.ClusterStateReader
	Deleter  nodeops.NodeDeleter
	Strategy strategy.EvictionStrategy
	Tracker  *nodeops.ReadinessTracker
	Recorder record.EventRecorder
	Clock    clock.WithTicker

	mu          sync.Mutex
	phase       Phase
	lastPoll    time.Time
	lastPollErr error
}

// NewReconciler wires the default list reader, API deleter and NotReady
// timeout strategy around client. Options replace any of them.
func NewReconciler(cfg *config.Config, client kubernetes.Interface, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{Cfg: cfg, phase: PhaseIdle}
	for _, opt := range opts {
		opt(r)
	}

	if r.Clock == nil {
		r.Clock = clock.RealClock{}
	}
	if r.Reader == nil {
		filter := nodeops.ManagedNodeFilter{AllowControlPlane: cfg.AllowControlPlane, IgnoreLabels: cfg.IgnoreLabels}
		r.Reader = nodeops.NewListReader(client, filter, cfg.RequestTimeout, r.Clock)
	}
	if r.Deleter == nil {
		r.Deleter = nodeops.NewAPIDeleter(client, cfg.RequestTimeout, cfg.DryRun)
	}
	if r.Strategy == nil {
		r.Strategy = &strategy.NotReadyTimeout{Threshold: cfg.NotReadyDuration}
	}
	if r.Tracker == nil {
		r.Tracker = nodeops.NewReadinessTracker()
	}
	return r
}

// Reconcile runs a single Polling → Deciding → Acting cycle.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	_, err := r.reconcile(ctx)
	return err
}

// reconcile reports whether the poll succeeded so Run can pick the next delay.
func (r *Reconciler) reconcile(ctx context.Context) (bool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Reconcile")
	defer span.End()
	defer r.setPhase(PhaseIdle)

	metrics.Cycles.Inc()

	r.setPhase(PhasePolling)
	observations, err := r.Reader.ReadNodes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the poll; the API is not at fault.
			return false, ctx.Err()
		}
		// A failed poll must not touch the tracker: stale data is worse than none.
		r.recordPollFailure(err)
		span.RecordError(err)
		return false, fmt.Errorf("polling nodes: %w", err)
	}
	r.recordPollSuccess()

	r.setPhase(PhaseDeciding)
	now := r.Clock.Now()
	for _, t := range r.Tracker.Observe(observations) {
		logTransition(t, now)
	}
	r.updateNodeMetrics(observations)

	tracked := r.Tracker.Snapshot()
	eligible := r.Strategy.Eligible(tracked, now)
	r.logWaiting(tracked, eligible, now)
	span.SetAttributes(
		attribute.Int("nodes.observed", len(observations)),
		attribute.Int("nodes.not_ready", r.Tracker.Len()),
		attribute.Int("nodes.eligible", len(eligible)),
	)
	if len(eligible) == 0 {
		return true, nil
	}

	r.setPhase(PhaseActing)
	byName := make(map[string]nodeops.NodeObservation, len(observations))
	for _, obs := range observations {
		byName[obs.Name] = obs
	}
	// Deletions already decided on run to completion even during shutdown;
	// each call is still bounded by the request timeout.
	return true, r.deleteNodes(context.WithoutCancel(ctx), eligible, byName, now)
}

type deleteOutcome struct {
	node   nodeops.NodeObservation
	result nodeops.DeleteResult
	err    error
}

func (r *Reconciler) deleteNodes(ctx context.Context, eligible []string, byName map[string]nodeops.NodeObservation, now time.Time) error {
	outcomes := make([]deleteOutcome, len(eligible))

	var g errgroup.Group
	g.SetLimit(max(r.Cfg.DeleteConcurrency, 1))
	for i, name := range eligible {
		i, name := i, name
		node := byName[name]
		g.Go(func() error {
			ctx, span := tracing.Tracer().Start(ctx, "DeleteNode", trace.WithAttributes(attribute.String("node", name)))
			defer span.End()

			res, err := r.Deleter.DeleteNode(ctx, node)
			if err != nil {
				span.RecordError(err)
			}
			outcomes[i] = deleteOutcome{node: node, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	// Tracker updates happen here, on the loop goroutine, after every delete returned.
	var errs error
	for _, o := range outcomes {
		errs = multierr.Append(errs, r.applyDeleteOutcome(o, now))
	}
	metrics.TrackedNotReady.Set(float64(r.Tracker.Len()))
	return errs
}

func (r *Reconciler) applyDeleteOutcome(o deleteOutcome, now time.Time) error {
	name := o.node.Name
	var notReadyFor time.Duration
	if since, ok := r.Tracker.NotReadySince(name); ok {
		notReadyFor = now.Sub(since)
	}
	metrics.NodeDeletions.WithLabelValues(string(o.result)).Inc()

	switch o.result {
	case nodeops.Deleted:
		slog.Info("Deleted NotReady node", "node", name, "notReadyFor", notReadyFor.String())
		r.event(o.node, v1.EventTypeWarning, events.ReasonDeletedNotReadyNode,
			"Deleted Node object after it was NotReady for %s", notReadyFor.Truncate(time.Second))
		r.Tracker.Forget(name)
	case nodeops.AlreadyGone:
		slog.Info("Node already deleted by another actor", "node", name)
		r.Tracker.Forget(name)
	case nodeops.Skipped:
		slog.Info("Node object was replaced before deletion; skipping", "node", name)
		r.Tracker.Forget(name)
	case nodeops.DryRun:
		slog.Debug("Dry-run: node stays tracked", "node", name, "notReadyFor", notReadyFor.String())
	default:
		if nodeops.IsAuthError(o.err) {
			metrics.AuthFailures.Inc()
			slog.Error("Node delete rejected by the API server; check the RBAC binding and token validity",
				"node", name, "err", o.err)
		} else {
			slog.Warn("Failed to delete node; will retry next cycle", "node", name, "err", o.err)
		}
		r.event(o.node, v1.EventTypeWarning, events.ReasonDeleteNodeFailed, "Failed to delete NotReady node: %v", o.err)
		return o.err
	}
	return nil
}

func (r *Reconciler) recordPollFailure(err error) {
	r.mu.Lock()
	r.lastPollErr = err
	r.mu.Unlock()

	if nodeops.IsAuthError(err) {
		metrics.AuthFailures.Inc()
		metrics.PollFailures.WithLabelValues(metrics.ReasonAuth).Inc()
		slog.Error("Node poll rejected by the API server; check the kubeconfig token and RBAC binding", "err", err)
		return
	}
	metrics.PollFailures.WithLabelValues(metrics.ReasonUnreachable).Inc()
	slog.Warn("Node poll failed; tracking state left unchanged", "err", err)
}

func (r *Reconciler) recordPollSuccess() {
	at := r.Clock.Now()
	r.mu.Lock()
	r.lastPoll = at
	r.lastPollErr = nil
	r.mu.Unlock()
	metrics.RecordPollSuccess(at)
}

func (r *Reconciler) updateNodeMetrics(observations []nodeops.NodeObservation) {
	ready := 0
	for _, obs := range observations {
		if obs.Ready {
			ready++
		}
	}
	metrics.UpdateNodesCount(ready, len(observations)-ready)
	metrics.TrackedNotReady.Set(float64(r.Tracker.Len()))
}

func (r *Reconciler) event(node nodeops.NodeObservation, eventType, reason, messageFmt string, args ...any) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.Eventf(events.NodeRef(node.Name, node.UID), eventType, reason, messageFmt, args...)
}

// logWaiting reports nodes still inside their grace period when the strategy can tell how long is left.
func (r *Reconciler) logWaiting(tracked map[string]time.Time, eligible []string, now time.Time) {
	rs, ok := r.Strategy.(interface {
		Remaining(since, now time.Time) time.Duration
	})
	if !ok {
		return
	}
	for name, since := range tracked {
		if lo.Contains(eligible, name) {
			continue
		}
		slog.Debug("Node NotReady, waiting for grace period", "node", name, "remaining", rs.Remaining(since, now).String())
	}
}

func logTransition(t nodeops.Transition, now time.Time) {
	switch t.Type {
	case nodeops.BecameNotReady:
		slog.Info("Node became NotReady", "node", t.Node, "since", t.Since)
	case nodeops.BecameReady:
		slog.Info("Node is Ready again; NotReady timer reset", "node", t.Node, "notReadyFor", now.Sub(t.Since).String())
	case nodeops.Vanished:
		slog.Info("Tracked node is no longer listed; dropping", "node", t.Node)
	}
}

func (r *Reconciler) setPhase(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = p
}

func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Reconciler) LastSuccessfulPoll() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPoll
}

func (r *Reconciler) LastPollError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPollErr
}
