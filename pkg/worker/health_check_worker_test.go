package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/warren-agent/pkg/events"
	"github.com/cuemby/warren-agent/pkg/health"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeCall struct {
	protocol health.Protocol
	address  string
	port     int
	uri      string
	timeout  time.Duration
}

// fakeProber answers with status. Once limit calls were made, further
// calls block until their context is cancelled.
type fakeProber struct {
	mu     sync.Mutex
	calls  []probeCall
	status health.Status
	limit  int
}

func (p *fakeProber) record(ctx context.Context, call probeCall) bool {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	over := p.limit > 0 && len(p.calls) > p.limit
	p.mu.Unlock()

	if over {
		<-ctx.Done()
		return false
	}
	return true
}

func (p *fakeProber) result(protocol health.Protocol, ok bool) health.Result {
	status := p.status
	if !ok || status == "" {
		status = health.StatusUnhealthy
	}
	res := health.Result{Status: status, Protocol: protocol, CheckedAt: time.Now()}
	switch {
	case protocol == health.ProtocolTCP && status == health.StatusHealthy:
		res.StatusCode = health.TCPOpen
	case protocol == health.ProtocolTCP:
		res.StatusCode = health.TCPClosed
	case status == health.StatusHealthy:
		res.StatusCode = http.StatusOK
	default:
		res.StatusCode = http.StatusInternalServerError
		res.Message = "HTTP 500 Internal Server Error"
	}
	return res
}

func (p *fakeProber) CheckHTTPStatus(ctx context.Context, address string, port int, uri string, timeout time.Duration) health.Result {
	ok := p.record(ctx, probeCall{protocol: health.ProtocolHTTP, address: address, port: port, uri: uri, timeout: timeout})
	return p.result(health.ProtocolHTTP, ok)
}

func (p *fakeProber) CheckTCPStatus(ctx context.Context, address string, port int, timeout time.Duration) health.Result {
	ok := p.record(ctx, probeCall{protocol: health.ProtocolTCP, address: address, port: port, timeout: timeout})
	return p.result(health.ProtocolTCP, ok)
}

func (p *fakeProber) Calls() []probeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]probeCall(nil), p.calls...)
}

type restartRequest struct {
	serviceID      string
	instanceNumber int
}

type fakeRestarter struct {
	mu       sync.Mutex
	requests []restartRequest
	err      error
}

func (r *fakeRestarter) RequestRestart(serviceID string, instanceNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, restartRequest{serviceID: serviceID, instanceNumber: instanceNumber})
	return r.err
}

func (r *fakeRestarter) Requests() []restartRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]restartRequest(nil), r.requests...)
}

func scenarioLabels(protocol, port string) map[string]string {
	return map[string]string{
		types.LabelHealthCheckProtocol:     protocol,
		types.LabelHealthCheckURI:          "/",
		types.LabelHealthCheckPort:         port,
		types.LabelHealthCheckTimeout:      "10",
		types.LabelHealthCheckInterval:     "30",
		types.LabelHealthCheckInitialDelay: "20",
	}
}

func testContainer(id string, healthLabels map[string]string) *types.Container {
	labels := map[string]string{
		types.LabelContainerName:         "web-" + id,
		types.LabelContainerOverlayCIDR:  "1.2.3.4/24",
		types.LabelServiceID:             "svc-1",
		types.LabelServiceInstanceNumber: "3",
	}
	for k, v := range healthLabels {
		labels[k] = v
	}
	return types.ContainerFromLabels(id, labels)
}

// fastWorker builds a worker and shrinks its schedule for tests
func fastWorker(t *testing.T, c *types.Container, queue *events.Queue, restarter Restarter, prober health.Prober, delay, interval time.Duration) *HealthCheckWorker {
	t.Helper()
	w, err := NewHealthCheckWorker(c, queue, restarter, WithProber(prober))
	require.NoError(t, err)
	w.config.InitialDelay = delay
	w.config.Interval = interval
	return w
}

func runWorker(w *HealthCheckWorker) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func drain(q *events.Queue) []events.Event {
	var out []events.Event
	for {
		e, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestNewHealthCheckWorker(t *testing.T) {
	w, err := NewHealthCheckWorker(testContainer("c1", scenarioLabels("http", "8080")), events.NewQueue(), &fakeRestarter{})
	require.NoError(t, err)

	cfg := w.Config()
	assert.Equal(t, health.ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "/", cfg.URI)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 20*time.Second, cfg.InitialDelay)
	assert.Equal(t, "1.2.3.4", w.Container().OverlayIP)
}

func TestNewHealthCheckWorker_ConfigError(t *testing.T) {
	labels := scenarioLabels("http", "not-a-port")

	w, err := NewHealthCheckWorker(testContainer("c1", labels), events.NewQueue(), &fakeRestarter{})
	require.Error(t, err)
	assert.Nil(t, w)

	var cfgErr *health.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, types.LabelHealthCheckPort, cfgErr.Label)
	assert.ErrorIs(t, err, health.ErrInvalidValue)
}

func TestRun_HTTPTwoCycles(t *testing.T) {
	queue := events.NewQueue()
	prober := &fakeProber{status: health.StatusHealthy, limit: 2}
	restarter := &fakeRestarter{}
	w := fastWorker(t, testContainer("c1", scenarioLabels("http", "8080")), queue, restarter, prober, 10*time.Millisecond, 20*time.Millisecond)

	cancel, done := runWorker(w)
	assert.Eventually(t, func() bool { return len(prober.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	pushed := drain(queue)
	require.Len(t, pushed, 2)
	for _, e := range pushed {
		assert.Equal(t, events.EventContainerHealth, e.Type)
		res, ok := e.HealthResult()
		require.True(t, ok)
		assert.Equal(t, health.StatusHealthy, res.Status)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "c1", res.ID)
		assert.Equal(t, "web-c1", res.Name)
	}

	want := probeCall{protocol: health.ProtocolHTTP, address: "1.2.3.4", port: 8080, uri: "/", timeout: 10 * time.Second}
	calls := prober.Calls()
	assert.Equal(t, want, calls[0])
	assert.Equal(t, want, calls[1])
	assert.Empty(t, restarter.Requests())
}

func TestRun_TCPTwoCycles(t *testing.T) {
	queue := events.NewQueue()
	prober := &fakeProber{status: health.StatusHealthy, limit: 2}
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), queue, &fakeRestarter{}, prober, 10*time.Millisecond, 20*time.Millisecond)

	cancel, done := runWorker(w)
	assert.Eventually(t, func() bool { return len(prober.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	pushed := drain(queue)
	require.Len(t, pushed, 2)
	res, ok := pushed[0].HealthResult()
	require.True(t, ok)
	assert.Equal(t, health.TCPOpen, res.StatusCode)

	for _, call := range prober.Calls()[:2] {
		assert.Equal(t, health.ProtocolTCP, call.protocol)
		assert.Equal(t, "1.2.3.4", call.address)
		assert.Equal(t, 1234, call.port)
		assert.Equal(t, 10*time.Second, call.timeout)
	}
}

func TestRun_WaitsInitialDelay(t *testing.T) {
	prober := &fakeProber{status: health.StatusHealthy}
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), events.NewQueue(), &fakeRestarter{}, prober, 150*time.Millisecond, time.Hour)

	cancel, done := runWorker(w)
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, prober.Calls())
	assert.Eventually(t, func() bool { return len(prober.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_CancelDuringInitialDelay(t *testing.T) {
	prober := &fakeProber{status: health.StatusHealthy}
	queue := events.NewQueue()
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), queue, &fakeRestarter{}, prober, time.Hour, time.Hour)

	cancel, done := runWorker(w)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop during initial delay")
	}
	assert.Empty(t, prober.Calls())
	assert.Equal(t, 0, queue.Len())
}

func TestRun_SlowProbeDoesNotBlockOtherWorkers(t *testing.T) {
	queue := events.NewQueue()
	blocked := blockingProber{}
	fast := &fakeProber{status: health.StatusHealthy}

	slow := fastWorker(t, testContainer("slow", scenarioLabels("tcp", "1")), queue, &fakeRestarter{}, blocked, 0, 10*time.Millisecond)
	quick := fastWorker(t, testContainer("quick", scenarioLabels("tcp", "2")), queue, &fakeRestarter{}, fast, 0, 10*time.Millisecond)

	cancelSlow, slowDone := runWorker(slow)
	cancelQuick, quickDone := runWorker(quick)

	assert.Eventually(t, func() bool { return len(fast.Calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancelQuick()
	<-quickDone
	cancelSlow()
	<-slowDone

	for _, e := range drain(queue) {
		res, ok := e.HealthResult()
		require.True(t, ok)
		assert.Equal(t, "quick", res.ID)
	}
}

func TestRun_ProbeLatencyDoesNotDelaySchedule(t *testing.T) {
	const (
		interval = 50 * time.Millisecond
		latency  = 30 * time.Millisecond
	)
	queue := events.NewQueue()
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), queue, &fakeRestarter{}, slowProber{latency: latency}, 0, interval)

	start := time.Now()
	cancel, done := runWorker(w)
	time.Sleep(time.Second)
	cancel()
	<-done
	elapsed := time.Since(start)

	// Anchored ticks give about elapsed/interval cycles. Sleeping a full
	// interval after each probe would give elapsed/(interval+latency).
	additive := int(elapsed / (interval + latency))
	anchored := int(elapsed/interval) + 1
	pushed := queue.Len()
	assert.Greater(t, pushed, additive+3, "cycles drifted by the probe latency")
	assert.LessOrEqual(t, pushed, anchored)
}

// slowProber answers healthy after latency
type slowProber struct {
	latency time.Duration
}

func (p slowProber) wait(ctx context.Context) health.Result {
	select {
	case <-time.After(p.latency):
		return health.Result{Status: health.StatusHealthy, CheckedAt: time.Now()}
	case <-ctx.Done():
		return health.Result{Status: health.StatusUnhealthy}
	}
}

func (p slowProber) CheckHTTPStatus(ctx context.Context, _ string, _ int, _ string, _ time.Duration) health.Result {
	return p.wait(ctx)
}

func (p slowProber) CheckTCPStatus(ctx context.Context, _ string, _ int, _ time.Duration) health.Result {
	return p.wait(ctx)
}

// blockingProber never answers before its context is cancelled
type blockingProber struct{}

func (blockingProber) CheckHTTPStatus(ctx context.Context, _ string, _ int, _ string, _ time.Duration) health.Result {
	<-ctx.Done()
	return health.Result{Status: health.StatusUnhealthy}
}

func (blockingProber) CheckTCPStatus(ctx context.Context, _ string, _ int, _ time.Duration) health.Result {
	<-ctx.Done()
	return health.Result{Status: health.StatusUnhealthy}
}

func TestHandleAction_Healthy(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{}
	w := fastWorker(t, testContainer("c1", scenarioLabels("http", "8080")), queue, restarter, &fakeProber{}, 0, time.Hour)

	w.handleAction(context.Background(), health.Result{Status: health.StatusHealthy, StatusCode: 200})

	assert.Equal(t, 0, queue.Len())
	assert.Empty(t, restarter.Requests())
}

func TestHandleAction_Unhealthy(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{}
	w := fastWorker(t, testContainer("c1", scenarioLabels("http", "8080")), queue, restarter, &fakeProber{}, 0, time.Hour)

	w.handleAction(context.Background(), health.Result{Status: health.StatusUnhealthy, StatusCode: 500, Message: "HTTP 500"})

	assert.Equal(t, []restartRequest{{serviceID: "svc-1", instanceNumber: 3}}, restarter.Requests())

	pushed := drain(queue)
	require.Len(t, pushed, 1)
	assert.Equal(t, events.EventContainerRestart, pushed[0].Type)
	action, ok := pushed[0].RestartAction()
	require.True(t, ok)
	assert.Equal(t, events.RestartAction{
		ID:             "c1",
		Name:           "web-c1",
		ServiceID:      "svc-1",
		InstanceNumber: 3,
		Reason:         "HTTP 500",
	}, action)
}

func TestHandleAction_NoStreakTracking(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{}
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), queue, restarter, &fakeProber{}, 0, time.Hour)

	for i := 0; i < 3; i++ {
		w.handleAction(context.Background(), health.Result{Status: health.StatusUnhealthy, StatusCode: health.TCPClosed})
	}

	assert.Len(t, restarter.Requests(), 3)
	assert.Equal(t, 3, queue.Len())
}

func TestHandleAction_RestartFailureStillRecorded(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{err: errors.New("dispatch queue is full")}
	w := fastWorker(t, testContainer("c1", scenarioLabels("tcp", "1234")), queue, restarter, &fakeProber{}, 0, time.Hour)

	w.handleAction(context.Background(), health.Result{Status: health.StatusUnhealthy, StatusCode: health.TCPClosed})

	assert.Len(t, restarter.Requests(), 1)
	assert.Equal(t, 1, queue.Len())
}

func TestCycle_RestartEventFollowsHealthEvent(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{}
	prober := &fakeProber{status: health.StatusUnhealthy}
	w := fastWorker(t, testContainer("c1", scenarioLabels("http", "8080")), queue, restarter, prober, 0, time.Hour)

	w.cycle(context.Background())

	pushed := drain(queue)
	require.Len(t, pushed, 2)
	assert.Equal(t, events.EventContainerHealth, pushed[0].Type)
	assert.Equal(t, events.EventContainerRestart, pushed[1].Type)

	res, _ := pushed[0].HealthResult()
	assert.Equal(t, health.StatusUnhealthy, res.Status)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Len(t, restarter.Requests(), 1)
}

func TestCycle_CancelledContextPushesNothing(t *testing.T) {
	queue := events.NewQueue()
	restarter := &fakeRestarter{}
	w := fastWorker(t, testContainer("c1", scenarioLabels("http", "8080")), queue, restarter, &fakeProber{status: health.StatusUnhealthy}, 0, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.cycle(ctx)

	assert.Equal(t, 0, queue.Len())
	assert.Empty(t, restarter.Requests())
}

func TestCycle_RealProbes(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	// A port that was just released refuses connections
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tests := []struct {
		name       string
		protocol   string
		port       int
		wantStatus health.Status
		wantCode   interface{}
	}{
		{"http 200", "http", serverPort(t, okServer), health.StatusHealthy, http.StatusOK},
		{"http 500", "http", serverPort(t, failServer), health.StatusUnhealthy, http.StatusInternalServerError},
		{"tcp open", "tcp", serverPort(t, okServer), health.StatusHealthy, health.TCPOpen},
		{"tcp refused", "tcp", closedPort, health.StatusUnhealthy, health.TCPClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &types.Container{
				ID:        "c1",
				Name:      "web",
				OverlayIP: "127.0.0.1",
				Labels: map[string]string{
					types.LabelHealthCheckProtocol: tt.protocol,
					types.LabelHealthCheckPort:     strconv.Itoa(tt.port),
					types.LabelHealthCheckTimeout:  "2",
				},
				ServiceID:      "web",
				InstanceNumber: 1,
			}
			queue := events.NewQueue()
			w, err := NewHealthCheckWorker(c, queue, &fakeRestarter{})
			require.NoError(t, err)

			w.cycle(context.Background())

			e, ok := queue.TryPop()
			require.True(t, ok)
			res, ok := e.HealthResult()
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantCode, res.StatusCode)
		})
	}
}

func serverPort(t *testing.T, s *httptest.Server) int {
	t.Helper()
	_, port, err := net.SplitHostPort(s.Listener.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return n
}
