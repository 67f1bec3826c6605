package health

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/warren-agent/pkg/types"
)

var (
	// ErrUnsupportedProtocol is returned for a protocol other than http or tcp
	ErrUnsupportedProtocol = errors.New("unsupported health check protocol")

	// ErrMissingLabel is returned when a required label is absent
	ErrMissingLabel = errors.New("missing required label")

	// ErrInvalidValue is returned when a label value is malformed or out of range
	ErrInvalidValue = errors.New("invalid label value")
)

// ConfigError reports a malformed or unsupported health check declaration.
// It is fatal to starting the container's worker.
type ConfigError struct {
	Label string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("health check config: %s: %v", e.Label, e.Err)
	}
	return fmt.Sprintf("health check config: %s=%q: %v", e.Label, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the typed health check configuration of one container
type Config struct {
	Protocol Protocol `json:"protocol" yaml:"protocol"`

	// URI is the HTTP path to request, unused for TCP
	URI string `json:"uri,omitempty" yaml:"uri,omitempty"`

	Port int `json:"port" yaml:"port"`

	// Timeout bounds a single probe
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Interval is the time between probe cycles
	Interval time.Duration `json:"interval" yaml:"interval"`

	// InitialDelay is the grace period before the first probe
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
}

// DefaultConfig returns the values used for labels that are not set
func DefaultConfig() Config {
	return Config{
		URI:          "/",
		Timeout:      10 * time.Second,
		Interval:     30 * time.Second,
		InitialDelay: 0,
	}
}

// ParseConfig extracts the health check configuration from container labels.
// All numeric labels are decimal seconds (or a port number).
func ParseConfig(labels map[string]string) (Config, error) {
	cfg := DefaultConfig()

	protocol, ok := labels[types.LabelHealthCheckProtocol]
	if !ok {
		return Config{}, &ConfigError{Label: types.LabelHealthCheckProtocol, Err: ErrMissingLabel}
	}
	switch Protocol(strings.ToLower(strings.TrimSpace(protocol))) {
	case ProtocolHTTP:
		cfg.Protocol = ProtocolHTTP
	case ProtocolTCP:
		cfg.Protocol = ProtocolTCP
	default:
		return Config{}, &ConfigError{Label: types.LabelHealthCheckProtocol, Value: protocol, Err: ErrUnsupportedProtocol}
	}

	if uri, ok := labels[types.LabelHealthCheckURI]; ok && uri != "" {
		if !strings.HasPrefix(uri, "/") {
			uri = "/" + uri
		}
		cfg.URI = uri
	}

	port, err := parseInt(labels, types.LabelHealthCheckPort)
	if err != nil {
		return Config{}, err
	}
	if port < 1 || port > 65535 {
		return Config{}, invalid(types.LabelHealthCheckPort, labels, "port out of range")
	}
	cfg.Port = port

	if err := parseSeconds(labels, types.LabelHealthCheckTimeout, &cfg.Timeout, 1); err != nil {
		return Config{}, err
	}
	if err := parseSeconds(labels, types.LabelHealthCheckInterval, &cfg.Interval, 1); err != nil {
		return Config{}, err
	}
	if err := parseSeconds(labels, types.LabelHealthCheckInitialDelay, &cfg.InitialDelay, 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseInt(labels map[string]string, key string) (int, error) {
	raw, ok := labels[key]
	if !ok {
		return 0, &ConfigError{Label: key, Err: ErrMissingLabel}
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ConfigError{Label: key, Value: raw, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	return n, nil
}

// parseSeconds overwrites dst when the label is present. Values below minimum are rejected.
func parseSeconds(labels map[string]string, key string, dst *time.Duration, minimum int) error {
	if _, ok := labels[key]; !ok {
		return nil
	}

	n, err := parseInt(labels, key)
	if err != nil {
		return err
	}
	if n < minimum {
		return invalid(key, labels, fmt.Sprintf("must be at least %d", minimum))
	}
	*dst = time.Duration(n) * time.Second
	return nil
}

func invalid(key string, labels map[string]string, reason string) error {
	return &ConfigError{Label: key, Value: labels[key], Err: fmt.Errorf("%w: %s", ErrInvalidValue, reason)}
}
