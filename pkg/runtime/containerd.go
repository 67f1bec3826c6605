package runtime

import (
	"context"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultNamespace is the containerd namespace for Warren
	DefaultNamespace = "warren"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL
	DefaultStopTimeout = 10 * time.Second
)

// Config holds the containerd connection settings
type Config struct {
	SocketPath  string
	Namespace   string
	StopTimeout time.Duration
}

// ContainerdRuntime lists and restarts Warren containers through containerd
type ContainerdRuntime struct {
	client      *containerd.Client
	namespace   string
	stopTimeout time.Duration
	logger      zerolog.Logger
}

// NewContainerdRuntime creates a new containerd runtime client
func NewContainerdRuntime(cfg Config) (*ContainerdRuntime, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	client, err := containerd.New(cfg.SocketPath, containerd.WithDefaultNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:      client,
		namespace:   cfg.Namespace,
		stopTimeout: cfg.StopTimeout,
		logger:      log.WithComponent("runtime"),
	}, nil
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks that the containerd daemon answers
func (r *ContainerdRuntime) Ping(ctx context.Context) error {
	serving, err := r.client.IsServing(ctx)
	if err != nil {
		return fmt.Errorf("containerd not reachable: %w", err)
	}
	if !serving {
		return fmt.Errorf("containerd not serving")
	}
	return nil
}

// ListContainers returns every container in the namespace whose task is running
func (r *ContainerdRuntime) ListContainers(ctx context.Context) ([]*types.Container, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]*types.Container, 0, len(containers))
	for _, c := range containers {
		running, err := isRunning(ctx, c)
		if err != nil {
			r.logger.Debug().Err(err).Str("container_id", c.ID()).Msg("Skipping container")
			continue
		}
		if !running {
			continue
		}

		labels, err := c.Labels(ctx)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read labels of %s: %w", c.ID(), err)
		}

		out = append(out, types.ContainerFromLabels(c.ID(), labels))
	}

	return out, nil
}

// RestartInstance stops the task of the container running the given service
// instance and starts a fresh one. types.ErrContainerNotFound is returned
// when no container carries the instance labels.
func (r *ContainerdRuntime) RestartInstance(ctx context.Context, serviceID string, instanceNumber int) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx, InstanceFilter(serviceID, instanceNumber))
	if err != nil {
		return fmt.Errorf("failed to look up service %s instance %d: %w", serviceID, instanceNumber, err)
	}
	if len(containers) == 0 {
		return fmt.Errorf("service %s instance %d: %w", serviceID, instanceNumber, types.ErrContainerNotFound)
	}

	container := containers[0]
	logger := r.logger.With().
		Str("container_id", container.ID()).
		Str("service_id", serviceID).
		Int("instance_number", instanceNumber).
		Logger()

	if err := r.stopTask(ctx, container); err != nil {
		return err
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}

	logger.Info().Uint32("pid", task.Pid()).Msg("Container restarted")
	return nil
}

// stopTask sends SIGTERM, escalates to SIGKILL after the stop timeout and
// deletes the task. A container without a task is left as is.
func (r *ContainerdRuntime) stopTask(ctx context.Context, container containerd.Container) error {
	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	// Wait must be registered before the signal is sent
	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to kill task: %w", err)
	}

	grace := time.NewTimer(r.stopTimeout)
	defer grace.Stop()

	select {
	case <-statusC:
	case <-grace.C:
		r.logger.Warn().
			Str("container_id", container.ID()).
			Dur("stop_timeout", r.stopTimeout).
			Msg("Container did not stop in time, sending SIGKILL")
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
		select {
		case <-statusC:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

func isRunning(ctx context.Context, c containerd.Container) (bool, error) {
	task, err := c.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	status, err := task.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Status == containerd.Running, nil
}

// InstanceFilter returns the containerd filter selecting the container of
// one service instance
func InstanceFilter(serviceID string, instanceNumber int) string {
	return fmt.Sprintf("labels.%q==%s,labels.%q==%s",
		types.LabelServiceID, strconv.Quote(serviceID),
		types.LabelServiceInstanceNumber, strconv.Quote(strconv.Itoa(instanceNumber)))
}
