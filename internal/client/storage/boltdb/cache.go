package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
)

// PutCached stores or replaces the cached copy of a document
func (s *Storage) PutCached(ctx context.Context, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCache)
		if bucket == nil {
			return fmt.Errorf("cache bucket not found")
		}

		if err := bucket.Put([]byte(entry.Path), data); err != nil {
			return fmt.Errorf("failed to save cache entry: %w", err)
		}
		return nil
	})
}

// GetCached retrieves the cached copy of a document by path
func (s *Storage) GetCached(ctx context.Context, path string) (*models.CacheEntry, error) {
	var entry *models.CacheEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCache)
		if bucket == nil {
			return fmt.Errorf("cache bucket not found")
		}

		data := bucket.Get([]byte(path))
		if data == nil {
			return storage.ErrCacheMiss
		}

		entry = &models.CacheEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("failed to unmarshal cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// DeleteCached removes the cached copy of a document
func (s *Storage) DeleteCached(ctx context.Context, path string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCache)
		if bucket == nil {
			return fmt.Errorf("cache bucket not found")
		}
		return bucket.Delete([]byte(path))
	})
}

// ListCached returns all cached entries ordered by path. Bucket iteration is
// already key ordered, so no extra sort is needed.
func (s *Storage) ListCached(ctx context.Context) ([]*models.CacheEntry, error) {
	var entries []*models.CacheEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCache)
		if bucket == nil {
			return fmt.Errorf("cache bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			entry := &models.CacheEntry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return fmt.Errorf("failed to unmarshal cache entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// ClearCache removes all cached entries
func (s *Storage) ClearCache(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketCache); err != nil {
			return fmt.Errorf("failed to delete cache bucket: %w", err)
		}
		if _, err := tx.CreateBucket(bucketCache); err != nil {
			return fmt.Errorf("failed to recreate cache bucket: %w", err)
		}
		return nil
	})
}
