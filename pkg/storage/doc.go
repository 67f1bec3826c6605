/*
Package storage persists the agent's audit trail in BoltDB.

Every event drained from the action queue becomes a types.AuditLog record in
the audit_logs bucket of a single database file (queue.audit_db, by default
/var/lib/warren-agent/audit.db).

# Bucket Layout

	audit_logs
	  key:   8-byte big-endian bucket sequence (insertion order)
	  value: JSON-encoded types.AuditLog

Because sequence keys sort in the order records were appended, the newest
records are read by walking a cursor backwards from Last:

	store, err := storage.NewBoltStore("/var/lib/warren-agent/audit.db")
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := store.ListAuditLogs(20) // newest first

# Retention

PruneAuditLogs(keep) deletes the oldest records beyond keep in a single
write transaction.

# Concurrency

BoltDB serializes writers and lets readers run concurrently against a
consistent snapshot. BoltStore holds no state of its own and is safe for
use from multiple goroutines. Only one process may open the file at a time;
NewBoltStore gives up after one second if the file is locked.
*/
package storage
