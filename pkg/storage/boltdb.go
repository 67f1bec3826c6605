package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/warren-agent/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAuditLogs = []byte("audit_logs")
)

// BoltStore implements AuditStore using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAuditLogs); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketAuditLogs, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// AppendAuditLog stores the record under the bucket's next sequence number,
// so cursor order is insertion order. Missing ID and CreatedAt are filled in.
func (s *BoltStore) AppendAuditLog(log *types.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLogs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(log)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

func (s *BoltStore) GetAuditLog(id string) (*types.AuditLog, error) {
	var found *types.AuditLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLogs).ForEach(func(k, v []byte) error {
			var log types.AuditLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			if log.ID == id {
				found = &log
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("audit log %s: %w", id, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListAuditLogs(limit int) ([]*types.AuditLog, error) {
	return s.listNewest(limit, func(*types.AuditLog) bool { return true })
}

func (s *BoltStore) ListAuditLogsByResource(resourceID string, limit int) ([]*types.AuditLog, error) {
	return s.listNewest(limit, func(log *types.AuditLog) bool {
		return log.ResourceID == resourceID
	})
}

// listNewest walks the bucket backwards, keeping records that match
func (s *BoltStore) listNewest(limit int, match func(*types.AuditLog) bool) ([]*types.AuditLog, error) {
	var logs []*types.AuditLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAuditLogs).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var log types.AuditLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			if !match(&log) {
				continue
			}
			logs = append(logs, &log)
			if limit > 0 && len(logs) >= limit {
				return nil
			}
		}
		return nil
	})
	return logs, err
}

func (s *BoltStore) PruneAuditLogs(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLogs)
		excess := b.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}

		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	return deleted, err
}

// sequenceKey encodes seq big-endian so byte order matches numeric order
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
