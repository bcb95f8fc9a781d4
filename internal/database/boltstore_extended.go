// internal/database/boltstore_extended.go - camera status history and housekeeping
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

// historyKey sorts entries per camera in time order.
func historyKey(cameraID string, ts time.Time) string {
	return fmt.Sprintf("%s:%020d", cameraID, ts.UnixNano())
}

// GetStatusHistory returns the status transitions of one camera since a point in time, oldest first.
func (s *BoltStore) GetStatusHistory(ctx context.Context, cameraID string, since time.Time) ([]StatusHistoryEntry, error) {
	entries := []StatusHistoryEntry{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(StatusHistBucket).Cursor()
		prefix := cameraID + ":"

		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var entry StatusHistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.Timestamp.After(since) {
				entries = append(entries, entry)
			}
		}
		return nil
	})

	return entries, err
}

// DeleteStatusHistoryBefore removes historical status entries older than cutoff
func (s *BoltStore) DeleteStatusHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deletedCount := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		hb := tx.Bucket(StatusHistBucket)
		cursor := hb.Cursor()
		var keysToDelete [][]byte

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var entry StatusHistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.Timestamp.Before(cutoff) {
				keysToDelete = append(keysToDelete, copyBytes(k))
			}
		}

		for _, key := range keysToDelete {
			if err := hb.Delete(key); err != nil {
				return fmt.Errorf("failed to delete history entry %s: %w", key, err)
			}
			deletedCount++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"deleted_count": deletedCount,
		"cutoff_time":   cutoff,
	}).Info("Deleted old status history entries")

	return deletedCount, nil
}

// GetDatabaseStats returns information about database size and contents
func (s *BoltStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalCameras = tx.Bucket(CamerasBucket).Stats().KeyN
		stats.TotalUsers = tx.Bucket(UsersBucket).Stats().KeyN
		stats.TotalRequests = tx.Bucket(RequestsBucket).Stats().KeyN
		stats.ActiveRequests = tx.Bucket(ActiveRequestsBucket).Stats().KeyN

		hb := tx.Bucket(StatusHistBucket)
		stats.TotalHistorySize = hb.Stats().KeyN

		// Keys are grouped per camera, so the range needs a full pass.
		return hb.ForEach(func(k, v []byte) error {
			var entry StatusHistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			if stats.OldestHistoryEntry.IsZero() || entry.Timestamp.Before(stats.OldestHistoryEntry) {
				stats.OldestHistoryEntry = entry.Timestamp
			}
			if entry.Timestamp.After(stats.NewestHistoryEntry) {
				stats.NewestHistoryEntry = entry.Timestamp
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}

	return stats, nil
}

// copyBytes creates a copy of a byte slice
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
