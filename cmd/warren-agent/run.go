package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/warren-agent/pkg/audit"
	"github.com/cuemby/warren-agent/pkg/config"
	"github.com/cuemby/warren-agent/pkg/events"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/remediation"
	"github.com/cuemby/warren-agent/pkg/runtime"
	"github.com/cuemby/warren-agent/pkg/storage"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/cuemby/warren-agent/pkg/version"
	"github.com/cuemby/warren-agent/pkg/worker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Long: `Start the agent: watch containerd for labeled containers, probe them,
restart failing instances and record every result in the audit log.

The agent stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runAgent(cmd.Context(), cfg)
	},
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("agent")
	metrics.SetVersion(version.Version)

	rt, err := runtime.NewContainerdRuntime(runtime.Config{
		SocketPath:  cfg.Containerd.Socket,
		Namespace:   cfg.Containerd.Namespace,
		StopTimeout: cfg.Remediation.StopTimeout,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Ping(ctx); err != nil {
		return err
	}
	metrics.RegisterComponent(metrics.ComponentContainerd, true, "connected")

	store, err := storage.NewBoltStore(cfg.Queue.AuditDB)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer store.Close()

	queue := events.NewQueue()

	// The consumer outlives ctx so it can drain the queue after shutdown
	consumer := audit.NewConsumer(queue, store, cfg.Queue.AuditRetain)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(context.Background())
	}()

	dispatcher := remediation.NewDispatcher(rt, remediation.Config{
		Workers:        cfg.Remediation.Workers,
		QueueSize:      cfg.Remediation.QueueSize,
		AttemptTimeout: cfg.Remediation.AttemptTimeout,
		RetryInterval:  cfg.Remediation.RetryInterval,
		MaxElapsed:     cfg.Remediation.MaxElapsed,
	})
	dispatcher.Start()

	monitor := worker.NewHealthMonitor(&reportingLister{lister: rt}, queue, dispatcher, cfg.Monitor.SyncInterval)
	monitor.Start()
	metrics.RegisterComponent(metrics.ComponentMonitor, true, "running")

	collector := metrics.NewCollector(monitor, queue)
	collector.Start()

	serverErr := make(chan error, 1)
	var server *http.Server
	if cfg.Metrics.Addr != "" {
		server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	logger.Info().
		Str("version", version.Version).
		Str("namespace", cfg.Containerd.Namespace).
		Str("metrics_addr", cfg.Metrics.Addr).
		Dur("sync_interval", cfg.Monitor.SyncInterval).
		Msg("Warren agent started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	// Workers stop first so nothing is pushed after the queue closes
	monitor.Stop()
	metrics.UpdateComponent(metrics.ComponentMonitor, false, "stopped")
	dispatcher.Stop()
	collector.Stop()

	queue.Close()
	if err := <-consumerDone; err != nil {
		logger.Warn().Err(err).Msg("Audit consumer stopped with error")
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// reportingLister reflects containerd reachability in the agent's /health
type reportingLister struct {
	lister worker.ContainerLister
}

func (l *reportingLister) ListContainers(ctx context.Context) ([]*types.Container, error) {
	containers, err := l.lister.ListContainers(ctx)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentContainerd, false, err.Error())
		return nil, err
	}
	metrics.UpdateComponent(metrics.ComponentContainerd, true, "connected")
	return containers, nil
}
