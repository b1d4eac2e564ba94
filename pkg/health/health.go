package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"k8s.io/apiserver/pkg/server/healthz"
	"k8s.io/utils/clock"
)

// PollStatus is implemented by the reconciler.
type PollStatus interface {
	LastSuccessfulPoll() time.Time
	LastPollError() error
}

// LeaderAware is implemented by statuses of replicas that only poll while
// holding the leader lease. A standby replica is ready without polling.
type LeaderAware interface {
	IsLeader() bool
}

// PollFreshnessCheck fails when no poll succeeded within maxAge. A controller
// whose token expired keeps running but stops being ready, which is what an
// operator watching the pod sees first.
func PollFreshnessCheck(status PollStatus, maxAge time.Duration, clk clock.PassiveClock) healthz.HealthChecker {
	return healthz.NamedCheck("node-poll", func(_ *http.Request) error {
		if la, ok := status.(LeaderAware); ok && !la.IsLeader() {
			return nil
		}
		last := status.LastSuccessfulPoll()
		if last.IsZero() {
			return errors.New("no successful node poll yet")
		}
		if age := clk.Since(last); age > maxAge {
			return fmt.Errorf("last successful node poll was %s ago (limit %s): %v", age.Truncate(time.Second), maxAge, status.LastPollError())
		}
		return nil
	})
}

// NewMux wires /healthz, /livez and /readyz. Liveness only pings; readiness
// also requires fresh polls.
func NewMux(status PollStatus, maxAge time.Duration, clk clock.PassiveClock) *http.ServeMux {
	mux := http.NewServeMux()
	healthz.InstallHandler(mux, healthz.PingHealthz)
	healthz.InstallLivezHandler(mux, healthz.PingHealthz)
	healthz.InstallReadyzHandler(mux, healthz.PingHealthz, PollFreshnessCheck(status, maxAge, clk))
	return mux
}

// Serve runs the probe server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, status PollStatus, maxAge time.Duration, clk clock.PassiveClock) {
	srv := &http.Server{Addr: addr, Handler: NewMux(status, maxAge, clk), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("Starting health endpoints", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health endpoint server crashed", "err", err)
		}
	}()
}
