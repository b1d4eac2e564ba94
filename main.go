package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/docent-net/stale-node-controller/pkg/config"
	"github.com/docent-net/stale-node-controller/pkg/controller"
	"github.com/docent-net/stale-node-controller/pkg/election"
	"github.com/docent-net/stale-node-controller/pkg/events"
	"github.com/docent-net/stale-node-controller/pkg/health"
	"github.com/docent-net/stale-node-controller/pkg/kubeclient"
	"github.com/docent-net/stale-node-controller/pkg/metrics"
	"github.com/docent-net/stale-node-controller/pkg/nodeops"
	"github.com/docent-net/stale-node-controller/pkg/tracing"
)

const component = "stale-node-controller"

var version = "dev"

type options struct {
	configPath        string
	kubeconfig        string
	notReadyDuration  time.Duration
	pollInterval      time.Duration
	requestTimeout    time.Duration
	dryRun            bool
	allowControlPlane bool
	logLevel          string
	source            string
	metricsAddr       string
	healthAddr        string
	enableEvents      bool
	enableTracing     bool
	leaderElect       bool
	leaderElectionID  string
	leaderElectionNS  string

	// set holds the flags given explicitly on the command line.
	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet(component, flag.ContinueOnError)
	o := &options{set: map[string]bool{}}

	fs.StringVar(&o.configPath, "config", "", "Path to an optional YAML config file")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "", "Path to a kubeconfig; empty uses in-cluster config, then $HOME/.kube/config")
	fs.DurationVar(&o.notReadyDuration, "not-ready-duration", config.DefaultNotReadyDuration, "How long a node must stay NotReady before its Node object is deleted")
	fs.DurationVar(&o.pollInterval, "poll-interval", config.DefaultPollInterval, "Time between node polls")
	fs.DurationVar(&o.requestTimeout, "request-timeout", config.DefaultRequestTimeout, "Timeout for each API call")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Log deletions without sending them")
	fs.BoolVar(&o.allowControlPlane, "allow-control-plane", false, "Also delete NotReady control-plane nodes")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&o.source, "source", config.SourceList, "Node source: list (poll the API) or informer (watch cache)")
	fs.StringVar(&o.metricsAddr, "metrics-bind-address", config.DefaultMetricsAddress, "Address for /metrics; empty disables it")
	fs.StringVar(&o.healthAddr, "health-probe-bind-address", config.DefaultHealthAddress, "Address for /healthz, /livez and /readyz; empty disables them")
	fs.BoolVar(&o.enableEvents, "enable-events", false, "Record Kubernetes Events for node deletions")
	fs.BoolVar(&o.enableTracing, "enable-tracing", false, "Export OpenTelemetry spans to stdout")
	fs.BoolVar(&o.leaderElect, "leader-elect", false, "Hold a Lease so only one replica polls and deletes")
	fs.StringVar(&o.leaderElectionID, "leader-election-id", config.DefaultLeaderElectionID, "Name of the leader election Lease")
	fs.StringVar(&o.leaderElectionNS, "leader-election-namespace", config.DefaultLeaderElectionNamespace, "Namespace of the leader election Lease")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// buildConfig loads the optional config file and lets explicitly set flags override it.
func buildConfig(o *options) (*config.Config, error) {
	cfg := &config.Config{
		Metrics: config.MetricsConfig{Enabled: true},
		Health:  config.HealthConfig{Enabled: true},
	}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.set["not-ready-duration"] {
		if o.notReadyDuration <= 0 {
			return nil, fmt.Errorf("-not-ready-duration must be positive, got %s", o.notReadyDuration)
		}
		cfg.NotReadyDuration = o.notReadyDuration
	}
	if o.set["poll-interval"] {
		if o.pollInterval <= 0 {
			return nil, fmt.Errorf("-poll-interval must be positive, got %s", o.pollInterval)
		}
		cfg.PollInterval = o.pollInterval
	}
	if o.set["request-timeout"] {
		if o.requestTimeout <= 0 {
			return nil, fmt.Errorf("-request-timeout must be positive, got %s", o.requestTimeout)
		}
		cfg.RequestTimeout = o.requestTimeout
	}
	if o.set["dry-run"] {
		cfg.DryRun = o.dryRun
	}
	if o.set["allow-control-plane"] {
		cfg.AllowControlPlane = o.allowControlPlane
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["source"] {
		cfg.Source = o.source
	}
	if o.set["metrics-bind-address"] {
		cfg.Metrics.BindAddress = o.metricsAddr
		cfg.Metrics.Enabled = o.metricsAddr != ""
	}
	if o.set["health-probe-bind-address"] {
		cfg.Health.BindAddress = o.healthAddr
		cfg.Health.Enabled = o.healthAddr != ""
	}
	if o.set["enable-events"] {
		cfg.Events.Enabled = o.enableEvents
	}
	if o.set["enable-tracing"] {
		cfg.Tracing.Enabled = o.enableTracing
	}
	if o.set["leader-elect"] {
		cfg.LeaderElection.Enabled = o.leaderElect
	}
	if o.set["leader-election-id"] {
		cfg.LeaderElection.ID = o.leaderElectionID
	}
	if o.set["leader-election-namespace"] {
		cfg.LeaderElection.Namespace = o.leaderElectionNS
	}

	if err := cfg.ApplyDefaultsAndValidate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("invalid flags", "err", err)
		os.Exit(1)
	}

	cfg, err := buildConfig(o)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	klog.SetSlogLogger(logger)
	slog.Info("Starting stale-node-controller", "version", version)

	restConfig, err := kubeclient.GetRestConfig(o.kubeconfig)
	if err != nil {
		slog.Error("failed to load Kubernetes rest config", "err", err)
		os.Exit(1)
	}
	clientset, err := kubeclient.Get(restConfig)
	if err != nil {
		slog.Error("failed to init k8s client", "err", err)
		os.Exit(1)
	}

	if err := tracing.Init(component, cfg.Tracing.Enabled); err != nil {
		slog.Error("failed to init tracing", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			slog.Warn("failed to flush traces", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.RealClock{}
	opts := []controller.ReconcilerOption{controller.WithClock(clk)}

	if cfg.Source == config.SourceInformer {
		filter := nodeops.ManagedNodeFilter{AllowControlPlane: cfg.AllowControlPlane, IgnoreLabels: cfg.IgnoreLabels}
		reader, err := nodeops.NewInformerReader(clientset, filter, 0, clk)
		if err != nil {
			slog.Error("failed to init node informer", "err", err)
			os.Exit(1)
		}
		// Until the cache syncs ReadNodes reports the cluster unreachable, so the loop can start right away.
		go func() {
			if reader.Start(ctx) {
				slog.Info("Node cache synced")
			}
		}()
		opts = append(opts, controller.WithReader(reader))
	}

	if cfg.Events.Enabled {
		recorder, shutdown := events.NewRecorder(clientset, component)
		defer shutdown()
		opts = append(opts, controller.WithRecorder(recorder))
	}

	r := controller.NewReconciler(cfg, clientset, opts...)

	if cfg.Metrics.Enabled {
		metrics.Serve(ctx, cfg.Metrics.BindAddress)
	}
	identity, err := election.Identity()
	if err != nil {
		slog.Error("failed to build leader election identity", "err", err)
		os.Exit(1)
	}
	elector := election.New(clientset, cfg.LeaderElection, identity)

	if cfg.Health.Enabled {
		status := struct {
			*controller.Reconciler
			*election.Elector
		}{r, elector}
		health.Serve(ctx, cfg.Health.BindAddress, status, cfg.Health.MaxPollAge, clk)
	}

	if err := elector.Run(ctx, r.Run); err != nil {
		slog.Error("reconcile loop failed", "err", err)
		os.Exit(1)
	}
	slog.Info("Shutting down")
}
