package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol selects the probe strategy
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolTCP  Protocol = "tcp"
)

// Status is the classification of a single probe
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// TCP probe status codes
const (
	TCPOpen   = "open"
	TCPClosed = "closed"
)

// FailureKind describes why a probe produced no response
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
)

var (
	// ErrProbeTimeout is wrapped into Result.Err when the probe exceeded its deadline
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrProbeConnection is wrapped into Result.Err on any other network failure
	ErrProbeConnection = errors.New("probe connection failed")
)

// Result represents the outcome of a single probe. Results are never
// modified after the probe returns them.
type Result struct {
	Status Status `json:"status" yaml:"status"`

	// StatusCode is the HTTP status code (int) or TCPOpen/TCPClosed (string).
	// Nil when an HTTP probe got no response.
	StatusCode interface{} `json:"status_code,omitempty" yaml:"status_code,omitempty"`

	// Container identity, filled in by the worker
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Protocol  Protocol      `json:"protocol" yaml:"protocol"`
	Target    string        `json:"target" yaml:"target"`
	Failure   FailureKind   `json:"failure,omitempty" yaml:"failure,omitempty"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at" yaml:"checked_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Err is ErrProbeTimeout or ErrProbeConnection wrapping the network error
	Err error `json:"-" yaml:"-"`
}

// Healthy reports whether the probe succeeded
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Protocol returns the probe protocol
	Protocol() Protocol
}

// NewChecker creates the checker matching cfg.Protocol for the given address
func NewChecker(cfg Config, address string) (Checker, error) {
	switch cfg.Protocol {
	case ProtocolHTTP:
		return NewHTTPChecker(HTTPURL(address, cfg.Port, cfg.URI)).WithTimeout(cfg.Timeout), nil
	case ProtocolTCP:
		return NewTCPChecker(TCPAddress(address, cfg.Port)).WithTimeout(cfg.Timeout), nil
	default:
		return nil, &ConfigError{Label: "protocol", Value: string(cfg.Protocol), Err: ErrUnsupportedProtocol}
	}
}

// Prober runs the protocol-specific probes. The worker depends on this
// interface so the network can be replaced in tests.
type Prober interface {
	CheckHTTPStatus(ctx context.Context, address string, port int, uri string, timeout time.Duration) Result
	CheckTCPStatus(ctx context.Context, address string, port int, timeout time.Duration) Result
}

// NetworkProber is the Prober backed by real network probes
type NetworkProber struct{}

// CheckHTTPStatus implements Prober
func (NetworkProber) CheckHTTPStatus(ctx context.Context, address string, port int, uri string, timeout time.Duration) Result {
	return CheckHTTPStatus(ctx, address, port, uri, timeout)
}

// CheckTCPStatus implements Prober
func (NetworkProber) CheckTCPStatus(ctx context.Context, address string, port int, timeout time.Duration) Result {
	return CheckTCPStatus(ctx, address, port, timeout)
}

// TCPAddress formats host:port, bracketing IPv6 addresses
func TCPAddress(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// HTTPURL builds the probe target http://{address}:{port}{uri}. A uri without
// a leading slash gets one.
func HTTPURL(address string, port int, uri string) string {
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return fmt.Sprintf("http://%s%s", TCPAddress(address, port), uri)
}

// classify maps a network error to its failure kind and sentinel
func classify(err error) (FailureKind, error) {
	if isTimeout(err) {
		return FailureTimeout, fmt.Errorf("%w: %v", ErrProbeTimeout, err)
	}
	return FailureConnection, fmt.Errorf("%w: %v", ErrProbeConnection, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
