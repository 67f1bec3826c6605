package events

import (
	"time"

	"github.com/cuemby/warren-agent/pkg/health"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// EventContainerHealth carries the raw result of one probe cycle
	EventContainerHealth EventType = "container:health"

	// EventContainerRestart records that a restart was requested
	EventContainerRestart EventType = "container:restart"
)

// RestartAction is the payload of an EventContainerRestart event
type RestartAction struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ServiceID      string `json:"service_id"`
	InstanceNumber int    `json:"instance_number"`
	Reason         string `json:"reason"`
}

// Event is the unit pushed onto the action queue
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"` // health.Result or RestartAction
}

// NewHealthEvent wraps a probe result
func NewHealthEvent(result health.Result) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      EventContainerHealth,
		Timestamp: time.Now(),
		Data:      result,
	}
}

// NewRestartEvent records a requested restart
func NewRestartEvent(action RestartAction) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      EventContainerRestart,
		Timestamp: time.Now(),
		Data:      action,
	}
}

// HealthResult returns the probe result of a health event
func (e Event) HealthResult() (health.Result, bool) {
	res, ok := e.Data.(health.Result)
	return res, ok
}

// RestartAction returns the payload of a restart event
func (e Event) RestartAction() (RestartAction, bool) {
	action, ok := e.Data.(RestartAction)
	return action, ok
}
