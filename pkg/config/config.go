package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding the file
const EnvPrefix = "WARREN_AGENT_"

// DefaultPath is read when no --config flag is given and the file exists
const DefaultPath = "/etc/warren-agent/config.yaml"

// Config is the agent configuration
type Config struct {
	Log         Log         `koanf:"log"`
	Containerd  Containerd  `koanf:"containerd"`
	Monitor     Monitor     `koanf:"monitor"`
	Queue       Queue       `koanf:"queue"`
	Metrics     Metrics     `koanf:"metrics"`
	Remediation Remediation `koanf:"remediation"`

	k *koanf.Koanf
}

// Log configures the global logger
type Log struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Containerd configures the runtime connection
type Containerd struct {
	Socket    string `koanf:"socket"`
	Namespace string `koanf:"namespace"`
}

// Monitor configures the health monitor
type Monitor struct {
	// SyncInterval is how often running containers are listed
	SyncInterval time.Duration `koanf:"sync_interval"`
}

// Queue configures the audit consumer of the event queue
type Queue struct {
	// AuditDB is the BoltDB file the audit consumer writes to
	AuditDB string `koanf:"audit_db"`

	// AuditRetain caps the number of stored records, 0 keeps all
	AuditRetain int `koanf:"audit_retain"`
}

// Metrics configures the metrics and health endpoint
type Metrics struct {
	// Addr serves /metrics, /health and /ready. Empty disables the server.
	Addr string `koanf:"addr"`
}

// Remediation configures the restart dispatcher
type Remediation struct {
	Workers        int           `koanf:"workers"`
	QueueSize      int           `koanf:"queue_size"`
	StopTimeout    time.Duration `koanf:"stop_timeout"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	MaxElapsed     time.Duration `koanf:"max_elapsed"`
}

// Defaults returns the configuration used for keys that are not set
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":                   "info",
		"log.json":                    false,
		"containerd.socket":           "/run/containerd/containerd.sock",
		"containerd.namespace":        "warren",
		"monitor.sync_interval":       "5s",
		"queue.audit_db":              "/var/lib/warren-agent/audit.db",
		"queue.audit_retain":          100000,
		"metrics.addr":                ":9090",
		"remediation.workers":         2,
		"remediation.queue_size":      64,
		"remediation.stop_timeout":    "10s",
		"remediation.attempt_timeout": "30s",
		"remediation.retry_interval":  "1s",
		"remediation.max_elapsed":     "2m",
	}
}

// Load layers defaults, the YAML file at path (skipped when empty) and
// WARREN_AGENT_* environment variables, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := &Config{k: k}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps WARREN_AGENT_MONITOR_SYNC_INTERVAL to monitor.sync_interval.
// Only the first underscore separates the section from the key.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate rejects values the agent cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Monitor.SyncInterval <= 0:
		return fmt.Errorf("monitor.sync_interval must be positive")
	case c.Remediation.Workers < 1:
		return fmt.Errorf("remediation.workers must be at least 1")
	case c.Remediation.QueueSize < 1:
		return fmt.Errorf("remediation.queue_size must be at least 1")
	case c.Remediation.StopTimeout <= 0:
		return fmt.Errorf("remediation.stop_timeout must be positive")
	case c.Remediation.AttemptTimeout <= 0:
		return fmt.Errorf("remediation.attempt_timeout must be positive")
	case c.Remediation.MaxElapsed < 0:
		return fmt.Errorf("remediation.max_elapsed must not be negative")
	case c.Queue.AuditDB == "":
		return fmt.Errorf("queue.audit_db must be set")
	case c.Queue.AuditRetain < 0:
		return fmt.Errorf("queue.audit_retain must not be negative")
	}
	return nil
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	if c.k == nil {
		return yamlv3.Marshal(c)
	}
	return yamlv3.Marshal(c.k.Raw())
}
