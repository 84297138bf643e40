package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	yaml "sigs.k8s.io/yaml"
)

type ClustersConfig struct {
	// TTL evicts idle cluster clients.
	TTL metav1.Duration `json:"ttl"`
	// Active are the kubeconfig contexts operations fan out to. Empty means
	// the current context.
	Active []string `json:"active,omitempty"`
}

type KubernetesConfig struct {
	Clusters ClustersConfig `json:"clusters"`
}

type BackoffConfig struct {
	Initial metav1.Duration `json:"initial"`
	Max     metav1.Duration `json:"max"`
	Factor  float64         `json:"factor"`
	Jitter  float64         `json:"jitter"`
}

type WatchConfig struct {
	Backoff BackoffConfig `json:"backoff"`
	// UnavailableAfter consecutive failures mark a watch unavailable.
	UnavailableAfter int             `json:"unavailableAfter"`
	PollInterval     metav1.Duration `json:"pollInterval"`
}

type ActionsConfig struct {
	GracePeriod metav1.Duration `json:"gracePeriod"`
}

type FanOutConfig struct {
	Timeout     metav1.Duration `json:"timeout"`
	Concurrency int             `json:"concurrency"`
}

type NodeShellConfig struct {
	Image        string          `json:"image"`
	Namespace    string          `json:"namespace"`
	ReadyTimeout metav1.Duration `json:"readyTimeout"`
}

type Config struct {
	Kubernetes KubernetesConfig `json:"kubernetes"`
	Watch      WatchConfig      `json:"watch"`
	Actions    ActionsConfig    `json:"actions"`
	FanOut     FanOutConfig     `json:"fanOut"`
	NodeShell  NodeShellConfig  `json:"nodeShell"`
}

func Default() *Config {
	return &Config{
		Kubernetes: KubernetesConfig{Clusters: ClustersConfig{TTL: metav1.Duration{Duration: 2 * time.Minute}}},
		Watch: WatchConfig{
			Backoff: BackoffConfig{
				Initial: metav1.Duration{Duration: 500 * time.Millisecond},
				Max:     metav1.Duration{Duration: 30 * time.Second},
				Factor:  2,
				Jitter:  0.2,
			},
			UnavailableAfter: 5,
			PollInterval:     metav1.Duration{Duration: 10 * time.Second},
		},
		Actions:   ActionsConfig{GracePeriod: metav1.Duration{Duration: 5 * time.Second}},
		FanOut:    FanOutConfig{Timeout: metav1.Duration{Duration: 15 * time.Second}, Concurrency: 8},
		NodeShell: NodeShellConfig{Image: "docker.io/library/alpine:latest", Namespace: "kube-system", ReadyTimeout: metav1.Duration{Duration: time.Minute}},
	}
}

// Backoff returns the watch reconnect schedule.
func (c *Config) Backoff() wait.Backoff {
	return wait.Backoff{
		Duration: c.Watch.Backoff.Initial.Duration,
		Factor:   c.Watch.Backoff.Factor,
		Jitter:   c.Watch.Backoff.Jitter,
		Steps:    math.MaxInt32,
		Cap:      c.Watch.Backoff.Max.Duration,
	}
}

// fillDefaults replaces unset values. The grace period may be zero on purpose
// and is left alone.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Kubernetes.Clusters.TTL.Duration <= 0 {
		c.Kubernetes.Clusters.TTL = d.Kubernetes.Clusters.TTL
	}
	if c.Watch.Backoff.Initial.Duration <= 0 {
		c.Watch.Backoff.Initial = d.Watch.Backoff.Initial
	}
	if c.Watch.Backoff.Max.Duration <= 0 {
		c.Watch.Backoff.Max = d.Watch.Backoff.Max
	}
	if c.Watch.Backoff.Factor < 1 {
		c.Watch.Backoff.Factor = d.Watch.Backoff.Factor
	}
	if c.Watch.Backoff.Jitter < 0 {
		c.Watch.Backoff.Jitter = 0
	}
	if c.Watch.UnavailableAfter <= 0 {
		c.Watch.UnavailableAfter = d.Watch.UnavailableAfter
	}
	if c.Watch.PollInterval.Duration <= 0 {
		c.Watch.PollInterval = d.Watch.PollInterval
	}
	if c.Actions.GracePeriod.Duration < 0 {
		c.Actions.GracePeriod.Duration = 0
	}
	if c.FanOut.Timeout.Duration <= 0 {
		c.FanOut.Timeout = d.FanOut.Timeout
	}
	if c.FanOut.Concurrency <= 0 {
		c.FanOut.Concurrency = d.FanOut.Concurrency
	}
	if c.NodeShell.Image == "" {
		c.NodeShell.Image = d.NodeShell.Image
	}
	if c.NodeShell.Namespace == "" {
		c.NodeShell.Namespace = d.NodeShell.Namespace
	}
	if c.NodeShell.ReadyTimeout.Duration <= 0 {
		c.NodeShell.ReadyTimeout = d.NodeShell.ReadyTimeout
	}
}

func path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kc", "config.yaml"), nil
}

// Load reads ~/.kc/config.yaml if present, otherwise returns defaults.
func Load() (*Config, error) {
	p, err := path()
	if err != nil {
		return Default(), err
	}
	return LoadFile(p)
}

// LoadFile reads the config at p. A missing file yields the defaults.
// Keys missing from the file keep their default values.
func LoadFile(p string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", p, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes the config to ~/.kc/config.yaml, creating the directory if needed.
func Save(cfg *Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	return SaveFile(p, cfg)
}

// SaveFile writes cfg to p.
func SaveFile(p string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
