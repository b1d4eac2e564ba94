package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	k8smetrics "k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
	_ "k8s.io/component-base/metrics/prometheus/restclient" // for client-go metrics registration
)

const (
	namespace = "stale_node_controller"

	readyLabel    = "ready"
	notReadyLabel = "not_ready"

	ReasonUnreachable = "unreachable"
	ReasonAuth        = "auth"
)

// Registry holds the controller's own collectors. client-go and node-count
// metrics live in the component-base legacy registry; Handler serves both.
var Registry = prometheus.NewRegistry()

var (
	Cycles = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_cycles_total",
		Help:      "Number of reconcile cycles started",
	})
	PollFailures = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "Number of failed node polls by reason",
	}, []string{"reason"})
	NodeDeletions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_deletions_total",
		Help:      "Node delete attempts by result",
	}, []string{"result"})
	AuthFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "API calls rejected as unauthorized or forbidden",
	})
	TrackedNotReady = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_not_ready_nodes",
		Help:      "Nodes currently accumulating NotReady time",
	})
	LastSuccessfulPoll = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_successful_poll_timestamp_seconds",
		Help:      "Unix time of the last successful node poll",
	})
)

var nodesCount = k8smetrics.NewGaugeVec(
	&k8smetrics.GaugeOpts{
		Namespace: namespace,
		Name:      "nodes_count",
		Help:      "Number of observed nodes by readiness.",
	}, []string{"state"},
)

var registerOnce sync.Once

// RegisterAll registers the component-base metrics.
func RegisterAll() {
	registerOnce.Do(func() {
		legacyregistry.MustRegister(nodesCount)
	})
}

// UpdateNodesCount records the number of ready and not ready nodes seen by the last poll.
func UpdateNodesCount(ready, notReady int) {
	nodesCount.WithLabelValues(readyLabel).Set(float64(ready))
	nodesCount.WithLabelValues(notReadyLabel).Set(float64(notReady))
}

func RecordPollSuccess(at time.Time) {
	LastSuccessfulPoll.Set(float64(at.Unix()))
}

func Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{Registry, legacyregistry.DefaultGatherer},
		promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError},
	)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	RegisterAll()

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("Starting metrics endpoint", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server crashed", "err", err)
		}
	}()
}
