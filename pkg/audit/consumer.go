package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/warren-agent/pkg/events"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/storage"
	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/rs/zerolog"
)

// StatusRestartRequested is the EventStatus of a recorded restart request
const StatusRestartRequested = "restart_requested"

// pruneEvery is the number of appends between retention passes
const pruneEvery = 1000

// Consumer drains the action queue into the audit store
type Consumer struct {
	queue   *events.Queue
	store   storage.AuditStore
	retain  int
	written int
	logger  zerolog.Logger
}

// NewConsumer creates a consumer. retain <= 0 keeps every record.
func NewConsumer(queue *events.Queue, store storage.AuditStore, retain int) *Consumer {
	return &Consumer{
		queue:  queue,
		store:  store,
		retain: retain,
		logger: log.WithComponent("audit"),
	}
}

// Run handles events until ctx is done or the queue is closed and drained.
// It returns nil on a closed queue and ctx.Err() on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	metrics.RegisterComponent(metrics.ComponentAudit, true, "consuming")
	c.logger.Info().Msg("Audit consumer started")

	for {
		event, err := c.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, events.ErrQueueClosed) {
				c.logger.Info().Msg("Action queue closed, audit consumer stopped")
				return nil
			}
			return err
		}
		c.Handle(event)
	}
}

// Handle logs and persists a single event
func (c *Consumer) Handle(event events.Event) {
	record, err := Record(event)
	if err != nil {
		c.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Dropping event")
		return
	}

	c.logEvent(record)

	if err := c.store.AppendAuditLog(record); err != nil {
		metrics.AuditWriteFailures.Inc()
		metrics.UpdateComponent(metrics.ComponentAudit, false, err.Error())
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to write audit log")
		return
	}
	metrics.UpdateComponent(metrics.ComponentAudit, true, "consuming")

	c.written++
	if c.retain > 0 && c.written%pruneEvery == 0 {
		deleted, err := c.store.PruneAuditLogs(c.retain)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to prune audit logs")
		} else if deleted > 0 {
			c.logger.Debug().Int("deleted", deleted).Msg("Pruned audit logs")
		}
	}
}

func (c *Consumer) logEvent(record *types.AuditLog) {
	e := c.logger.Info()
	if record.EventStatus != "healthy" {
		e = c.logger.Warn()
	}
	e.Str("event", record.EventName).
		Str("container_id", record.ResourceID).
		Str("container_name", record.ResourceName).
		Str("status", record.EventStatus).
		Msg(record.EventDescription)
}

// Record converts a queue event to its audit record
func Record(event events.Event) (*types.AuditLog, error) {
	record := &types.AuditLog{
		ID:           event.ID,
		ResourceType: types.ResourceTypeContainer,
		EventName:    string(event.Type),
		CreatedAt:    event.Timestamp.UTC(),
	}

	switch event.Type {
	case events.EventContainerHealth:
		res, ok := event.HealthResult()
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", event.Type, event.Data)
		}
		record.ResourceID = res.ID
		record.ResourceName = res.Name
		record.EventStatus = string(res.Status)
		record.EventDescription = res.Message
		if record.EventDescription == "" {
			record.EventDescription = fmt.Sprintf("%s probe of %s", res.Protocol, res.Target)
		}

	case events.EventContainerRestart:
		action, ok := event.RestartAction()
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", event.Type, event.Data)
		}
		record.ResourceID = action.ID
		record.ResourceName = action.Name
		record.EventStatus = StatusRestartRequested
		record.EventDescription = fmt.Sprintf("restart of service %s instance %d requested", action.ServiceID, action.InstanceNumber)
		if action.Reason != "" {
			record.EventDescription += ": " + action.Reason
		}

	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	return record, nil
}
