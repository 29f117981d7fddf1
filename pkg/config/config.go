package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anchorhq/anchor/pkg/runtime"
	"github.com/anchorhq/anchor/pkg/volume"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library form.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the agent's configuration.
type Config struct {
	// Hostname is how other nodes reach this one. Defaults to the OS
	// hostname.
	Hostname string `yaml:"hostname"`

	// DataDir holds the agent's persistent state database.
	DataDir string `yaml:"data_dir"`

	// PoolDir is the directory backing local dataset volumes.
	PoolDir string `yaml:"pool_dir"`

	// ContainerdSocket is the containerd endpoint.
	ContainerdSocket string `yaml:"containerd_socket"`

	// ControllerAddress is the cluster controller endpoint. Empty runs the
	// agent standalone with an in-process loopback controller.
	ControllerAddress string `yaml:"controller_address"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`

	// MetricsAddress serves Prometheus metrics and health endpoints.
	// Empty disables the listener.
	MetricsAddress string `yaml:"metrics_address"`

	// ConvergeSleep is how long a converged node waits between cycles.
	ConvergeSleep Duration `yaml:"converge_sleep"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	hostname, _ := os.Hostname()
	return Config{
		Hostname:         hostname,
		DataDir:          "/var/lib/anchor",
		PoolDir:          volume.DefaultPoolPath,
		ContainerdSocket: runtime.DefaultSocketPath,
		LogLevel:         "info",
		MetricsAddress:   ":9090",
		ConvergeSleep:    Duration(5 * time.Second),
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the agent cannot run with.
func (c Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PoolDir == "" {
		return fmt.Errorf("pool_dir must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.ConvergeSleep <= 0 {
		return fmt.Errorf("converge_sleep must be positive")
	}
	return nil
}
