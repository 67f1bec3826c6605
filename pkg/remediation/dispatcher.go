package remediation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrDispatchQueueFull is returned when the restart backlog is full
	ErrDispatchQueueFull = errors.New("restart dispatch queue full")

	// ErrDispatcherStopped is returned for requests made after Stop
	ErrDispatcherStopped = errors.New("restart dispatcher stopped")
)

// ContainerRestarter stops and relaunches one service instance
type ContainerRestarter interface {
	RestartInstance(ctx context.Context, serviceID string, instanceNumber int) error
}

// Config holds dispatcher configuration
type Config struct {
	// Workers is the number of restarts performed concurrently
	Workers int

	// QueueSize is the number of requests that may wait for a worker
	QueueSize int

	// AttemptTimeout bounds a single restart attempt
	AttemptTimeout time.Duration

	// RetryInterval is the first backoff interval after a failed attempt
	RetryInterval time.Duration

	// MaxElapsed bounds retries of one request, 0 disables retries
	MaxElapsed time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      64,
		AttemptTimeout: 30 * time.Second,
		RetryInterval:  time.Second,
		MaxElapsed:     2 * time.Minute,
	}
}

type instanceKey struct {
	serviceID      string
	instanceNumber int
}

// Dispatcher accepts restart requests without blocking and performs them
// on its own goroutines.
type Dispatcher struct {
	restarter ContainerRestarter
	config    Config
	logger    zerolog.Logger

	requests chan instanceKey

	mu      sync.Mutex
	pending map[instanceKey]struct{}
	stopped bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a new restart dispatcher
func NewDispatcher(restarter ContainerRestarter, cfg Config) *Dispatcher {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		restarter: restarter,
		config:    cfg,
		logger:    log.WithComponent("remediation"),
		requests:  make(chan instanceKey, cfg.QueueSize),
		pending:   make(map[instanceKey]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the restart workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop abandons queued requests, cancels in-flight restarts and waits for
// the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// RequestRestart queues a restart of one service instance and returns
// immediately. A request for an instance that is already pending is merged
// into the pending one.
func (d *Dispatcher) RequestRestart(serviceID string, instanceNumber int) error {
	key := instanceKey{serviceID: serviceID, instanceNumber: instanceNumber}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		metrics.RestartDispatchFailures.Inc()
		return ErrDispatcherStopped
	}
	if _, ok := d.pending[key]; ok {
		d.logger.Debug().
			Str("service_id", serviceID).
			Int("instance_number", instanceNumber).
			Msg("Restart already pending")
		return nil
	}

	select {
	case d.requests <- key:
		d.pending[key] = struct{}{}
		metrics.RestartsRequested.Inc()
		return nil
	default:
		metrics.RestartDispatchFailures.Inc()
		return fmt.Errorf("%w: service %s instance %d", ErrDispatchQueueFull, serviceID, instanceNumber)
	}
}

// Pending returns the number of requests queued or in progress
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case key := <-d.requests:
			if d.ctx.Err() != nil {
				return
			}
			d.restart(key)
			d.mu.Lock()
			delete(d.pending, key)
			d.mu.Unlock()
		case <-d.ctx.Done():
			return
		}
	}
}

// restart retries transient failures with exponential backoff
func (d *Dispatcher) restart(key instanceKey) {
	logger := d.logger.With().
		Str("service_id", key.serviceID).
		Int("instance_number", key.instanceNumber).
		Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RestartDuration)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = d.config.RetryInterval
	retry.MaxElapsedTime = d.config.MaxElapsed
	retry.Reset()

	interval := time.Duration(0)
	for attempt := 1; ; attempt++ {
		wait := time.NewTimer(interval)
		select {
		case <-wait.C:
		case <-d.ctx.Done():
			wait.Stop()
			logger.Debug().Msg("Dispatcher stopped, abandoning restart")
			return
		}

		err := d.attempt(key)
		if err == nil {
			metrics.RestartsTotal.WithLabelValues("success").Inc()
			logger.Info().Int("attempt", attempt).Msg("Restarted container instance")
			return
		}

		if errors.Is(err, types.ErrContainerNotFound) || d.config.MaxElapsed == 0 {
			metrics.RestartsTotal.WithLabelValues("failure").Inc()
			logger.Error().Err(err).Msg("Failed to restart container instance")
			return
		}

		interval = retry.NextBackOff()
		if interval == backoff.Stop {
			metrics.RestartsTotal.WithLabelValues("failure").Inc()
			logger.Error().Err(err).Int("attempts", attempt).Msg("Giving up restarting container instance")
			return
		}
		logger.Warn().Err(err).Dur("retry_in", interval).Msg("Restart failed, will retry")
	}
}

func (d *Dispatcher) attempt(key instanceKey) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.AttemptTimeout)
	defer cancel()
	return d.restarter.RestartInstance(ctx, key.serviceID, key.instanceNumber)
}
