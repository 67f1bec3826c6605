package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialFunc opens a network connection
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPChecker performs TCP-based health checks. The container is healthy if a
// connection opens within Timeout; no data is exchanged.
type TCPChecker struct {
	// Address is the TCP address to connect to (e.g., "10.81.0.5:6379")
	Address string

	// Timeout bounds the whole connection attempt
	Timeout time.Duration

	// Dial overrides the default dialer (used by tests)
	Dial DialFunc
}

// NewTCPChecker creates a new TCP health checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: DefaultConfig().Timeout,
	}
}

// CheckTCPStatus probes address:port. Every failure, including an expired
// deadline, is reported as unhealthy with status code "closed".
func CheckTCPStatus(ctx context.Context, address string, port int, timeout time.Duration) Result {
	return NewTCPChecker(TCPAddress(address, port)).WithTimeout(timeout).Check(ctx)
}

type dialResult struct {
	conn net.Conn
	err  error
}

// Check performs the TCP health check
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{
		Protocol:  ProtocolTCP,
		Target:    t.Address,
		CheckedAt: start,
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	dial := t.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: t.Timeout}).DialContext
	}

	// The dial runs under a watchdog so a dialer that ignores its context
	// still cannot hold the probe past Timeout.
	done := make(chan dialResult, 1)
	go func() {
		conn, err := dial(ctx, "tcp", t.Address)
		done <- dialResult{conn: conn, err: err}
	}()

	var err error
	select {
	case res := <-done:
		if res.err == nil {
			res.conn.Close()
		}
		err = res.err
	case <-ctx.Done():
		err = ctx.Err()
		go func() {
			if res := <-done; res.err == nil {
				res.conn.Close()
			}
		}()
	}
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.StatusCode = TCPClosed
		result.Failure, result.Err = classify(err)
		result.Message = fmt.Sprintf("connection failed: %v", err)
		return result
	}

	result.Status = StatusHealthy
	result.StatusCode = TCPOpen
	result.Message = fmt.Sprintf("TCP connection to %s successful", t.Address)
	return result
}

// Protocol returns the health check protocol
func (t *TCPChecker) Protocol() Protocol {
	return ProtocolTCP
}

// WithTimeout sets the connection timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
