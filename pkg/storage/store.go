package storage

import (
	"errors"

	"github.com/cuemby/warren-agent/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// AuditStore defines the interface for persisting queue events
type AuditStore interface {
	// AppendAuditLog stores a record after every record stored before it
	AppendAuditLog(log *types.AuditLog) error

	// GetAuditLog returns a record by ID
	GetAuditLog(id string) (*types.AuditLog, error)

	// ListAuditLogs returns up to limit records, newest first. limit <= 0 returns all.
	ListAuditLogs(limit int) ([]*types.AuditLog, error)

	// ListAuditLogsByResource returns the records of one container, newest first
	ListAuditLogsByResource(resourceID string, limit int) ([]*types.AuditLog, error)

	// PruneAuditLogs deletes all but the newest keep records
	PruneAuditLogs(keep int) (int, error)

	// Close closes the store
	Close() error
}
