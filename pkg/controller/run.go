package controller

import (
	"context"
	"log/slog"
	"math"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Run repeats reconcile cycles until ctx is cancelled. It returns nil on
// shutdown; poll and delete failures are logged and retried, never fatal.
func (r *Reconciler) Run(ctx context.Context) error {
	slog.Info("Starting reconcile loop",
		"notReadyDuration", r.Cfg.NotReadyDuration.String(),
		"pollInterval", r.Cfg.PollInterval.String(),
		"strategy", r.Strategy.Name(),
		"dryRun", r.Cfg.DryRun)

	backoff := r.newBackoff()
	for {
		if ctx.Err() != nil {
			slog.Info("Reconcile loop stopped")
			return nil
		}

		delay := r.Cfg.PollInterval
		polled, err := r.reconcile(ctx)
		if ctx.Err() != nil {
			slog.Info("Reconcile loop stopped")
			return nil
		}
		switch {
		case !polled:
			delay = backoff.Step()
			slog.Info("Backing off after failed poll", "delay", delay.String())
		case err != nil:
			backoff = r.newBackoff()
			slog.Warn("Reconcile cycle finished with delete errors", "err", err)
		default:
			backoff = r.newBackoff()
		}

		select {
		case <-ctx.Done():
			slog.Info("Reconcile loop stopped")
			return nil
		case <-r.Clock.After(delay):
		}
	}
}

// newBackoff returns a fresh jittered exponential backoff. Once the cap is
// reached every step stays at Max plus up to Jitter of it.
func (r *Reconciler) newBackoff() *wait.Backoff {
	return &wait.Backoff{
		Duration: r.Cfg.Backoff.Initial,
		Factor:   r.Cfg.Backoff.Factor,
		Jitter:   r.Cfg.Backoff.Jitter,
		Steps:    math.MaxInt32,
		Cap:      r.Cfg.Backoff.Max,
	}
}

