package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const keyPullCursor = "pull_cursor"

// SaveCursor stores the pull cursor
func (s *Storage) SaveCursor(ctx context.Context, cursor int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("syncstate bucket not found")
		}

		cursorBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(cursorBytes, uint64(cursor))

		if err := bucket.Put([]byte(keyPullCursor), cursorBytes); err != nil {
			return fmt.Errorf("failed to save pull cursor: %w", err)
		}
		return nil
	})
}

// GetCursor retrieves the pull cursor
// Returns 0 if no sync has been performed yet
func (s *Storage) GetCursor(ctx context.Context) (int64, error) {
	var cursor int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("syncstate bucket not found")
		}

		cursorBytes := bucket.Get([]byte(keyPullCursor))
		if cursorBytes == nil {
			cursor = 0
			return nil
		}

		cursor = int64(binary.BigEndian.Uint64(cursorBytes))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get pull cursor: %w", err)
	}

	return cursor, nil
}
