package types

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Label namespace shared by every label the agent reads
const LabelPrefix = "io.warren."

// Health check labels
const (
	LabelHealthCheckProtocol     = LabelPrefix + "health_check.protocol"
	LabelHealthCheckURI          = LabelPrefix + "health_check.uri"
	LabelHealthCheckPort         = LabelPrefix + "health_check.port"
	LabelHealthCheckTimeout      = LabelPrefix + "health_check.timeout"
	LabelHealthCheckInterval     = LabelPrefix + "health_check.interval"
	LabelHealthCheckInitialDelay = LabelPrefix + "health_check.initial_delay"
)

// Container identity labels
const (
	LabelContainerName         = LabelPrefix + "container.name"
	LabelContainerOverlayCIDR  = LabelPrefix + "container.overlay_cidr"
	LabelServiceID             = LabelPrefix + "service.id"
	LabelServiceInstanceNumber = LabelPrefix + "service.instance_number"
)

// ErrContainerNotFound is returned when no container matches a lookup
var ErrContainerNotFound = errors.New("container not found")

// Container is a running container as seen by the agent.
// It is owned by the runtime and treated as read-only by health checking.
type Container struct {
	ID             string
	Name           string
	OverlayIP      string // Address reachable for probing
	Labels         map[string]string
	ServiceID      string
	InstanceNumber int
}

// HealthCheckEnabled reports whether the container declares a health check
func (c *Container) HealthCheckEnabled() bool {
	_, ok := c.Labels[LabelHealthCheckProtocol]
	return ok
}

// HealthCheckLabels returns only the health check labels of the container.
// Used to detect configuration changes between syncs.
func (c *Container) HealthCheckLabels() map[string]string {
	out := make(map[string]string)
	for k, v := range c.Labels {
		if strings.HasPrefix(k, LabelPrefix+"health_check.") {
			out[k] = v
		}
	}
	return out
}

// ContainerFromLabels builds a Container from a runtime ID and its labels.
// Missing identity labels leave the matching fields empty.
func ContainerFromLabels(id string, labels map[string]string) *Container {
	c := &Container{
		ID:        id,
		Name:      labels[LabelContainerName],
		Labels:    labels,
		ServiceID: labels[LabelServiceID],
	}
	if c.Name == "" {
		c.Name = id
	}

	if n, err := strconv.Atoi(labels[LabelServiceInstanceNumber]); err == nil {
		c.InstanceNumber = n
	}

	if cidr := labels[LabelContainerOverlayCIDR]; cidr != "" {
		if ip, _, err := net.ParseCIDR(cidr); err == nil {
			c.OverlayIP = ip.String()
		} else if ip := net.ParseIP(cidr); ip != nil {
			c.OverlayIP = ip.String()
		}
	}

	return c
}

// Audit resource types
const (
	ResourceTypeContainer = "container"
)

// AuditLog is a persisted record of one queue event
type AuditLog struct {
	ID               string    `json:"id"`
	ResourceID       string    `json:"resource_id"`
	ResourceName     string    `json:"resource_name"`
	ResourceType     string    `json:"resource_type"`
	EventName        string    `json:"event_name"`
	EventStatus      string    `json:"event_status"`
	EventDescription string    `json:"event_description"`
	CreatedAt        time.Time `json:"created_at"`
}
