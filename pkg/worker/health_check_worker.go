package worker

import (
	"context"
	"time"

	"github.com/cuemby/warren-agent/pkg/events"
	"github.com/cuemby/warren-agent/pkg/health"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Restarter requests the restart of a service instance. Implementations
// must not block on the restart itself.
type Restarter interface {
	RequestRestart(serviceID string, instanceNumber int) error
}

// Option configures a HealthCheckWorker
type Option func(*HealthCheckWorker)

// WithProber replaces the network probes
func WithProber(p health.Prober) Option {
	return func(w *HealthCheckWorker) {
		w.prober = p
	}
}

// HealthCheckWorker probes one container on a fixed schedule and routes
// every result through the restart policy
type HealthCheckWorker struct {
	container *types.Container
	config    health.Config
	queue     *events.Queue
	restarter Restarter
	prober    health.Prober
	logger    zerolog.Logger
}

// NewHealthCheckWorker parses the container's health check labels and
// returns a worker ready to Run. A *health.ConfigError is returned for an
// invalid declaration and no worker is created.
func NewHealthCheckWorker(container *types.Container, queue *events.Queue, restarter Restarter, opts ...Option) (*HealthCheckWorker, error) {
	cfg, err := health.ParseConfig(container.Labels)
	if err != nil {
		return nil, err
	}

	w := &HealthCheckWorker{
		container: container,
		config:    cfg,
		queue:     queue,
		restarter: restarter,
		prober:    health.NetworkProber{},
		logger:    log.WithContainer("health-worker", container.ID, container.Name),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Config returns the parsed health check configuration
func (w *HealthCheckWorker) Config() health.Config {
	return w.config
}

// Container returns the monitored container
func (w *HealthCheckWorker) Container() *types.Container {
	return w.container
}

// Run waits InitialDelay, then runs a probe cycle every Interval until ctx
// is cancelled. Once ctx is done the worker pushes nothing more.
func (w *HealthCheckWorker) Run(ctx context.Context) {
	w.logger.Info().
		Str("protocol", string(w.config.Protocol)).
		Str("address", w.container.OverlayIP).
		Int("port", w.config.Port).
		Dur("interval", w.config.Interval).
		Dur("initial_delay", w.config.InitialDelay).
		Msg("Health check worker started")
	defer func() {
		w.logger.Info().Msg("Health check worker stopped")
	}()

	if w.config.InitialDelay > 0 {
		delay := time.NewTimer(w.config.InitialDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			return
		case <-delay.C:
		}
	}

	// Ticks are anchored to the first cycle, so probe latency does not accumulate
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		w.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one probe, pushes its result and applies the restart policy
func (w *HealthCheckWorker) cycle(ctx context.Context) {
	timer := metrics.NewTimer()
	result := w.probe(ctx)
	timer.ObserveDurationVec(metrics.HealthCheckDuration, string(w.config.Protocol))

	result.ID = w.container.ID
	result.Name = w.container.Name

	if ctx.Err() != nil {
		return
	}

	metrics.HealthChecksTotal.WithLabelValues(string(w.config.Protocol), string(result.Status)).Inc()

	if err := w.queue.Push(events.NewHealthEvent(result)); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to push health result")
		return
	}

	w.handleAction(ctx, result)
}

func (w *HealthCheckWorker) probe(ctx context.Context) health.Result {
	address := w.container.OverlayIP
	switch w.config.Protocol {
	case health.ProtocolHTTP:
		return w.prober.CheckHTTPStatus(ctx, address, w.config.Port, w.config.URI, w.config.Timeout)
	default:
		return w.prober.CheckTCPStatus(ctx, address, w.config.Port, w.config.Timeout)
	}
}

// handleAction requests a restart for every unhealthy result and records
// the request on the queue. Healthy results have no side effect.
func (w *HealthCheckWorker) handleAction(ctx context.Context, result health.Result) {
	if result.Healthy() {
		w.logger.Debug().
			Interface("status_code", result.StatusCode).
			Dur("duration", result.Duration).
			Msg("Container healthy")
		return
	}

	w.logger.Warn().
		Interface("status_code", result.StatusCode).
		Str("failure", string(result.Failure)).
		Str("message", result.Message).
		Str("service_id", w.container.ServiceID).
		Int("instance_number", w.container.InstanceNumber).
		Msg("Container unhealthy, requesting restart")

	if err := w.restarter.RequestRestart(w.container.ServiceID, w.container.InstanceNumber); err != nil {
		w.logger.Error().Err(err).Msg("Failed to request restart")
	}

	if ctx.Err() != nil {
		return
	}

	action := events.RestartAction{
		ID:             w.container.ID,
		Name:           w.container.Name,
		ServiceID:      w.container.ServiceID,
		InstanceNumber: w.container.InstanceNumber,
		Reason:         result.Message,
	}
	if err := w.queue.Push(events.NewRestartEvent(action)); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to push restart event")
	}
}
