package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/warren-agent/pkg/events"
	"github.com/cuemby/warren-agent/pkg/health"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/rs/zerolog"
)

// ContainerLister returns the containers currently running on the node
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]*types.Container, error)
}

// HealthMonitor keeps one HealthCheckWorker running per labeled container
type HealthMonitor struct {
	lister       ContainerLister
	queue        *events.Queue
	restarter    Restarter
	syncInterval time.Duration
	workerOpts   []Option
	logger       zerolog.Logger

	mu       sync.Mutex
	workers  map[string]*monitoredContainer // keyed by container ID
	rejected map[string]string              // container ID -> fingerprint of invalid labels

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// monitoredContainer tracks the worker of a single container
type monitoredContainer struct {
	worker      *HealthCheckWorker
	fingerprint string
	cancel      context.CancelFunc
}

// NewHealthMonitor creates a new health monitor. opts are passed to every
// worker it starts.
func NewHealthMonitor(lister ContainerLister, queue *events.Queue, restarter Restarter, syncInterval time.Duration, opts ...Option) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if syncInterval <= 0 {
		syncInterval = 5 * time.Second
	}
	return &HealthMonitor{
		lister:       lister,
		queue:        queue,
		restarter:    restarter,
		syncInterval: syncInterval,
		workerOpts:   opts,
		logger:       log.WithComponent("health-monitor"),
		workers:      make(map[string]*monitoredContainer),
		rejected:     make(map[string]string),
		ctx:          ctx,
		cancel:       cancel,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the sync loop
func (hm *HealthMonitor) Start() {
	hm.wg.Add(1)
	go hm.monitorLoop()
}

// Stop cancels every worker and waits for them to exit. No worker pushes
// to the queue after Stop returns.
func (hm *HealthMonitor) Stop() {
	hm.once.Do(func() {
		close(hm.stopCh)
		hm.cancel()
	})
	hm.wg.Wait()

	hm.mu.Lock()
	hm.workers = make(map[string]*monitoredContainer)
	hm.mu.Unlock()
	metrics.MonitoredContainers.Set(0)
}

// WorkerCount returns the number of running workers
func (hm *HealthMonitor) WorkerCount() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.workers)
}

// Worker returns the worker of a container, if one is running
func (hm *HealthMonitor) Worker(containerID string) (*HealthCheckWorker, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	m, ok := hm.workers[containerID]
	if !ok {
		return nil, false
	}
	return m.worker, true
}

func (hm *HealthMonitor) monitorLoop() {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.syncInterval)
	defer ticker.Stop()

	for {
		if err := hm.Sync(hm.ctx); err != nil {
			hm.logger.Warn().Err(err).Msg("Health check sync failed")
		}

		select {
		case <-ticker.C:
		case <-hm.stopCh:
			return
		}
	}
}

// Sync reconciles running workers with the containers reported by the lister
func (hm *HealthMonitor) Sync(ctx context.Context) error {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	containers, err := hm.lister.ListContainers(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.ctx.Err() != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		if !c.HealthCheckEnabled() {
			continue
		}
		seen[c.ID] = struct{}{}
		fp := fingerprint(c)

		if m, ok := hm.workers[c.ID]; ok {
			if m.fingerprint == fp {
				continue
			}
			hm.logger.Info().
				Str("container_id", c.ID).
				Str("container_name", c.Name).
				Msg("Health check labels changed, restarting worker")
			m.cancel()
			delete(hm.workers, c.ID)
		}

		if hm.rejected[c.ID] == fp {
			continue
		}
		delete(hm.rejected, c.ID)

		if err := hm.startWorker(c, fp); err != nil {
			var cfgErr *health.ConfigError
			if !errors.As(err, &cfgErr) {
				return err
			}
			hm.rejected[c.ID] = fp
			metrics.ConfigErrorsTotal.Inc()
			hm.logger.Error().
				Err(err).
				Str("container_id", c.ID).
				Str("container_name", c.Name).
				Str("label", cfgErr.Label).
				Msg("Invalid health check configuration, container not monitored")
		}
	}

	for id, m := range hm.workers {
		if _, ok := seen[id]; ok {
			continue
		}
		hm.logger.Info().Str("container_id", id).Msg("Container gone, stopping health check worker")
		m.cancel()
		delete(hm.workers, id)
	}
	for id := range hm.rejected {
		if _, ok := seen[id]; !ok {
			delete(hm.rejected, id)
		}
	}

	metrics.MonitoredContainers.Set(float64(len(hm.workers)))
	return nil
}

// startWorker must be called with hm.mu held
func (hm *HealthMonitor) startWorker(c *types.Container, fp string) error {
	w, err := NewHealthCheckWorker(c, hm.queue, hm.restarter, hm.workerOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(hm.ctx)
	hm.workers[c.ID] = &monitoredContainer{
		worker:      w,
		fingerprint: fp,
		cancel:      cancel,
	}

	hm.wg.Add(1)
	go func() {
		defer hm.wg.Done()
		defer cancel()
		w.Run(ctx)
	}()

	return nil
}

// fingerprint identifies everything a worker depends on: the health check
// labels, the probe address and the restart key
func fingerprint(c *types.Container) string {
	labels := c.HealthCheckLabels()
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, labels[k])
	}
	fmt.Fprintf(&b, "ip=%s;service=%s;instance=%d", c.OverlayIP, c.ServiceID, c.InstanceNumber)
	return b.String()
}
