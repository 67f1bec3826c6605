// Package audit drains the action queue. Each event is logged and stored as
// a types.AuditLog record in the BoltDB audit store.
package audit
