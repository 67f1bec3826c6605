package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/warren-agent/pkg/version"
)

// HTTPChecker performs HTTP-based health checks.
// The container is healthy only if the GET returns exactly 200.
type HTTPChecker struct {
	// URL is the full HTTP URL to check (e.g., "http://10.81.0.5:8080/health")
	URL string

	// Headers are sent with every request. User-Agent is preset.
	Headers map[string]string

	// Timeout bounds connecting and the whole request
	Timeout time.Duration

	// Client overrides the client built from Timeout (used by tests)
	Client *http.Client
}

// NewHTTPChecker creates a new HTTP health checker
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL: url,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		Timeout: DefaultConfig().Timeout,
	}
}

// CheckHTTPStatus probes http://{address}:{port}{uri}. Network failures are
// reported as an unhealthy result without a status code.
func CheckHTTPStatus(ctx context.Context, address string, port int, uri string, timeout time.Duration) Result {
	return NewHTTPChecker(HTTPURL(address, port, uri)).WithTimeout(timeout).Check(ctx)
}

// Check performs the HTTP health check
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{
		Protocol:  ProtocolHTTP,
		Target:    h.URL,
		CheckedAt: start,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Failure = FailureConnection
		result.Err = fmt.Errorf("%w: %v", ErrProbeConnection, err)
		result.Message = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Failure, result.Err = classify(err)
		result.Message = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Message = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode == http.StatusOK {
		result.Status = StatusHealthy
	} else {
		result.Status = StatusUnhealthy
	}
	result.Duration = time.Since(start)

	return result
}

func (h *HTTPChecker) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}

	dialer := &net.Dialer{Timeout: h.Timeout}
	return &http.Client{
		Timeout: h.Timeout,
		Transport: &http.Transport{
			DialContext:       dialer.DialContext,
			DisableKeepAlives: true,
		},
		// Redirects are reported as their own status code
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Protocol returns the health check protocol
func (h *HTTPChecker) Protocol() Protocol {
	return ProtocolHTTP
}

// WithHeader adds a custom HTTP header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithTimeout sets the connect and request timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Timeout = timeout
	return h
}
