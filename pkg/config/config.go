package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/indygreg/docker-worker/pkg/types"
)

// Config is the full worker configuration, loaded from a YAML file
type Config struct {
	Worker  WorkerConfig  `yaml:"worker"`
	Queue   QueueConfig   `yaml:"queue"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// WorkerConfig identifies this worker and tunes its run loop
type WorkerConfig struct {
	ProvisionerID string `yaml:"provisionerId"`
	WorkerType    string `yaml:"workerType"`
	WorkerGroup   string `yaml:"workerGroup"`
	WorkerID      string `yaml:"workerId"`

	// Capacity is the number of task runs executed concurrently
	Capacity int `yaml:"capacity"`

	// DataDir holds per-run scratch space, transcripts, and the run
	// history database
	DataDir string `yaml:"dataDir"`

	// TaskLogPrefix is prepended to every worker-authored transcript line
	TaskLogPrefix string `yaml:"taskLogPrefix"`

	// PollInterval is the sleep between empty queue polls, in seconds
	PollInterval int `yaml:"pollInterval"`

	// ReclaimRetries is how many times a failed lease reclaim is retried
	// before the run is treated as having lost its lease. Zero means
	// fail fast.
	ReclaimRetries int `yaml:"reclaimRetries"`

	// ReclaimRetryDelay is the fixed delay between reclaim retries, in
	// seconds
	ReclaimRetryDelay int `yaml:"reclaimRetryDelay"`

	// Features overrides built-in feature defaults for every run.
	// Payload flags still win over these.
	Features map[string]bool `yaml:"features,omitempty"`

	// AuthProxyImage is the companion image the authProxy feature runs.
	// Required only when that feature is enabled.
	AuthProxyImage string `yaml:"authProxyImage,omitempty"`

	// ReaperInterval is how often leftover containers are swept, in
	// seconds
	ReaperInterval int `yaml:"reaperInterval"`

	// ContainerMaxAge is how old a leftover container must be before the
	// reaper removes it, in seconds
	ContainerMaxAge int `yaml:"containerMaxAge"`
}

// QueueConfig points at the upstream task queue
type QueueConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	AccessToken string `yaml:"accessToken"`

	// Timeout bounds each queue call, in seconds
	Timeout int `yaml:"timeout"`
}

// RuntimeConfig points at the container runtime
type RuntimeConfig struct {
	Socket    string `yaml:"socket"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls the operational log
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig controls the health/metrics HTTP endpoint
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Default returns a Config with every tunable at its default value.
// Identity fields stay empty; they have no sensible default.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Capacity:          1,
			DataDir:           "/var/lib/docker-worker",
			TaskLogPrefix:     "[docker-worker] ",
			PollInterval:      5,
			ReclaimRetries:    0,
			ReclaimRetryDelay: 5,
			ReaperInterval:    600,
			ContainerMaxAge:   3600,
		},
		Queue: QueueConfig{
			Timeout: 30,
		},
		Runtime: RuntimeConfig{
			Socket:    "/run/containerd/containerd.sock",
			Namespace: "docker-worker",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Server: ServerConfig{
			ListenAddr: ":8081",
		},
	}
}

// Load reads a YAML config file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can actually run a worker
func (c *Config) Validate() error {
	if c.Worker.ProvisionerID == "" {
		return fmt.Errorf("worker.provisionerId is required")
	}
	if c.Worker.WorkerType == "" {
		return fmt.Errorf("worker.workerType is required")
	}
	if c.Worker.WorkerGroup == "" {
		return fmt.Errorf("worker.workerGroup is required")
	}
	if c.Worker.WorkerID == "" {
		return fmt.Errorf("worker.workerId is required")
	}
	if c.Worker.Capacity < 1 {
		return fmt.Errorf("worker.capacity must be at least 1, got %d", c.Worker.Capacity)
	}
	if c.Worker.PollInterval < 1 {
		return fmt.Errorf("worker.pollInterval must be at least 1 second, got %d", c.Worker.PollInterval)
	}
	if c.Worker.ReclaimRetries < 0 {
		return fmt.Errorf("worker.reclaimRetries must not be negative, got %d", c.Worker.ReclaimRetries)
	}
	if c.Queue.BaseURL == "" {
		return fmt.Errorf("queue.baseUrl is required")
	}
	if c.Runtime.Socket == "" {
		return fmt.Errorf("runtime.socket is required")
	}
	if c.Runtime.Namespace == "" {
		return fmt.Errorf("runtime.namespace is required")
	}
	return nil
}

// Identity returns the worker identity tuple sent on every queue call
func (c *Config) Identity() types.WorkerIdentity {
	return types.WorkerIdentity{
		ProvisionerID: c.Worker.ProvisionerID,
		WorkerType:    c.Worker.WorkerType,
		WorkerGroup:   c.Worker.WorkerGroup,
		WorkerID:      c.Worker.WorkerID,
	}
}
