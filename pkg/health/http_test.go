package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/warren-agent/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverHostPort(t *testing.T, server *httptest.Server) (string, int) {
	t.Helper()
	addr, ok := server.Listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.IP.String(), addr.Port
}

func TestCheckHTTPStatus_Healthy(t *testing.T) {
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	host, port := serverHostPort(t, server)
	result := CheckHTTPStatus(context.Background(), host, port, "/health", time.Second)

	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, ProtocolHTTP, result.Protocol)
	assert.NoError(t, result.Err)
	assert.Equal(t, "/health", gotPath)
	assert.Equal(t, version.UserAgent(), gotAgent)
	assert.True(t, result.Duration > 0)
}

func TestCheckHTTPStatus_URIWithoutSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	host, port := serverHostPort(t, server)
	result := CheckHTTPStatus(context.Background(), host, port, "health", time.Second)

	assert.Equal(t, StatusHealthy, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, "/health", gotPath)
}

func TestCheckHTTPStatus_UnhealthyStatusCodes(t *testing.T) {
	codes := []int{
		http.StatusNoContent,
		http.StatusMovedPermanently,
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if code == http.StatusMovedPermanently {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(code)
			}))
			defer server.Close()

			host, port := serverHostPort(t, server)
			result := CheckHTTPStatus(context.Background(), host, port, "/", time.Second)

			assert.Equal(t, StatusUnhealthy, result.Status)
			assert.Equal(t, code, result.StatusCode)
			assert.Empty(t, result.Failure)
		})
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	checker := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond)
	result := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Nil(t, result.StatusCode)
	assert.Equal(t, FailureTimeout, result.Failure)
	assert.True(t, errors.Is(result.Err, ErrProbeTimeout))
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	result := CheckHTTPStatus(context.Background(), "127.0.0.1", port, "/", time.Second)

	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Nil(t, result.StatusCode)
	assert.Equal(t, FailureConnection, result.Failure)
	assert.True(t, errors.Is(result.Err, ErrProbeConnection))
}

func TestHTTPChecker_MalformedURL(t *testing.T) {
	result := NewHTTPChecker("http://[::1").Check(context.Background())

	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Nil(t, result.StatusCode)
	assert.True(t, errors.Is(result.Err, ErrProbeConnection))
}

func TestHTTPChecker_CustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom-Header") != "test-value" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithHeader("X-Custom-Header", "test-value")
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy(), result.Message)
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewHTTPChecker(server.URL).Check(ctx)
	assert.False(t, result.Healthy())
	assert.Nil(t, result.StatusCode)
}
