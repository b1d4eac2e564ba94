package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceList     = "list"
	SourceInformer = "informer"
)

const (
	DefaultNotReadyDuration  = 15 * time.Minute
	DefaultPollInterval      = 15 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultDeleteConcurrency = 4
	DefaultMetricsAddress    = ":8080"
	DefaultHealthAddress     = ":8081"

	DefaultLeaderElectionID        = "stale-node-controller.docent.net"
	DefaultLeaderElectionNamespace = "kube-system"
)

type Config struct {
	LogLevel string `yaml:"logLevel"`

	// NotReadyDuration is the grace period a node must stay NotReady before its Node object is deleted.
	NotReadyDuration time.Duration `yaml:"notReadyDuration"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`

	DryRun            bool              `yaml:"dryRun"`
	AllowControlPlane bool              `yaml:"allowControlPlane"`
	IgnoreLabels      map[string]string `yaml:"ignoreLabels"`
	DeleteConcurrency int               `yaml:"deleteConcurrency"`

	// Source selects how nodes are observed: "list" polls the API, "informer" reads a watch-fed cache.
	Source string `yaml:"source"`

	Backoff BackoffConfig `yaml:"backoff"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Events  EventsConfig  `yaml:"events"`
	Tracing TracingConfig `yaml:"tracing"`

	LeaderElection LeaderElectionConfig `yaml:"leaderElection"`
}

// BackoffConfig controls the delay between cycles after a failed poll.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
	Jitter  float64       `yaml:"jitter"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
}

type HealthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	// MaxPollAge fails readiness when no poll succeeded for this long.
	MaxPollAge time.Duration `yaml:"maxPollAge"`
}

type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LeaderElectionConfig lets several replicas run with a single one polling and deleting.
type LeaderElectionConfig struct {
	Enabled bool `yaml:"enabled"`
	// ID names the coordination.k8s.io Lease.
	ID            string        `yaml:"id"`
	Namespace     string        `yaml:"namespace"`
	LeaseDuration time.Duration `yaml:"leaseDuration"`
	RenewDeadline time.Duration `yaml:"renewDeadline"`
	RetryPeriod   time.Duration `yaml:"retryPeriod"`
}

// Default returns a config with every default applied. Metrics and health endpoints are on.
func Default() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Health:  HealthConfig{Enabled: true},
	}
	if err := cfg.ApplyDefaultsAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Health:  HealthConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaultsAndValidate fills zero values with defaults and rejects inconsistent settings.
func (c *Config) ApplyDefaultsAndValidate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NotReadyDuration == 0 {
		c.NotReadyDuration = DefaultNotReadyDuration
	}
	if c.PollInterval == 0 {
		// Short thresholds still get several polls inside the grace period; below
		// four seconds the one second floor gives way to half the threshold.
		c.PollInterval = min(DefaultPollInterval, max(c.NotReadyDuration/4, min(time.Second, c.NotReadyDuration/2)))
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DeleteConcurrency == 0 {
		c.DeleteConcurrency = DefaultDeleteConcurrency
	}
	if c.Source == "" {
		c.Source = SourceList
	}
	if c.Backoff.Initial == 0 {
		c.Backoff.Initial = 5 * time.Second
	}
	if c.Backoff.Max == 0 {
		c.Backoff.Max = 2 * time.Minute
	}
	if c.Backoff.Factor == 0 {
		c.Backoff.Factor = 2
	}
	if c.Backoff.Jitter == 0 {
		c.Backoff.Jitter = 0.2
	}
	if c.Metrics.BindAddress == "" {
		c.Metrics.BindAddress = DefaultMetricsAddress
	}
	if c.Health.BindAddress == "" {
		c.Health.BindAddress = DefaultHealthAddress
	}
	if c.LeaderElection.ID == "" {
		c.LeaderElection.ID = DefaultLeaderElectionID
	}
	if c.LeaderElection.Namespace == "" {
		c.LeaderElection.Namespace = DefaultLeaderElectionNamespace
	}
	if c.LeaderElection.LeaseDuration == 0 {
		c.LeaderElection.LeaseDuration = 15 * time.Second
	}
	if c.LeaderElection.RenewDeadline == 0 {
		c.LeaderElection.RenewDeadline = 10 * time.Second
	}
	if c.LeaderElection.RetryPeriod == 0 {
		c.LeaderElection.RetryPeriod = 2 * time.Second
	}
	if c.Health.MaxPollAge == 0 {
		c.Health.MaxPollAge = 10 * c.PollInterval
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", c.LogLevel)
	}
	if c.NotReadyDuration < 0 {
		return fmt.Errorf("notReadyDuration must be positive, got %s", c.NotReadyDuration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval)
	}
	if c.PollInterval >= c.NotReadyDuration {
		return fmt.Errorf("pollInterval (%s) must be shorter than notReadyDuration (%s)", c.PollInterval, c.NotReadyDuration)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be positive, got %s", c.RequestTimeout)
	}
	if c.DeleteConcurrency < 1 {
		return fmt.Errorf("deleteConcurrency must be at least 1, got %d", c.DeleteConcurrency)
	}
	if c.Source != SourceList && c.Source != SourceInformer {
		return fmt.Errorf("unknown source %q (want %q or %q)", c.Source, SourceList, SourceInformer)
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff.max (%s) must be >= backoff.initial (%s)", c.Backoff.Max, c.Backoff.Initial)
	}
	if c.Backoff.Factor < 1 {
		return fmt.Errorf("backoff.factor must be >= 1, got %v", c.Backoff.Factor)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return fmt.Errorf("backoff.jitter must be within [0,1], got %v", c.Backoff.Jitter)
	}
	// client-go jitters retries by up to 1.2x, and the renew deadline must outlast that.
	if le := c.LeaderElection; le.Enabled &&
		(le.LeaseDuration <= le.RenewDeadline || float64(le.RenewDeadline) <= 1.2*float64(le.RetryPeriod) || le.RetryPeriod <= 0) {
		return fmt.Errorf("leaderElection needs leaseDuration (%s) > renewDeadline (%s) > 1.2*retryPeriod (%s) > 0",
			le.LeaseDuration, le.RenewDeadline, le.RetryPeriod)
	}
	return nil
}
