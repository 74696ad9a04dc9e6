package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
)

// Outbox entries live in two buckets: the main bucket maps a big-endian
// sequence number to the JSON entry, which keeps bbolt iteration in FIFO
// order. The index bucket maps entry id to sequence so lookups by id stay
// cheap.

// AppendEntry assigns the next sequence number to the entry and persists it
func (s *Storage) AppendEntry(ctx context.Context, entry *models.OutboxEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIndex)
		if bucket == nil || index == nil {
			return fmt.Errorf("outbox buckets not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		entry.Seq = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox entry: %w", err)
		}

		key := seqKey(seq)
		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to save outbox entry: %w", err)
		}
		if err := index.Put([]byte(entry.ID), key); err != nil {
			return fmt.Errorf("failed to index outbox entry: %w", err)
		}
		return nil
	})
}

// UpdateEntry rewrites an existing entry in place, keeping its sequence
func (s *Storage) UpdateEntry(ctx context.Context, entry *models.OutboxEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIndex)
		if bucket == nil || index == nil {
			return fmt.Errorf("outbox buckets not found")
		}

		key := index.Get([]byte(entry.ID))
		if key == nil {
			return storage.ErrEntryNotFound
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox entry: %w", err)
		}

		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to update outbox entry: %w", err)
		}
		return nil
	})
}

// GetEntry retrieves an entry by its id
func (s *Storage) GetEntry(ctx context.Context, id string) (*models.OutboxEntry, error) {
	var entry *models.OutboxEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIndex)
		if bucket == nil || index == nil {
			return fmt.Errorf("outbox buckets not found")
		}

		key := index.Get([]byte(id))
		if key == nil {
			return storage.ErrEntryNotFound
		}

		data := bucket.Get(key)
		if data == nil {
			return storage.ErrEntryNotFound
		}

		entry = &models.OutboxEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("failed to unmarshal outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// RemoveEntry deletes an entry by its id
func (s *Storage) RemoveEntry(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIndex)
		if bucket == nil || index == nil {
			return fmt.Errorf("outbox buckets not found")
		}

		key := index.Get([]byte(id))
		if key == nil {
			return nil
		}

		if err := bucket.Delete(key); err != nil {
			return fmt.Errorf("failed to delete outbox entry: %w", err)
		}
		if err := index.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete outbox index: %w", err)
		}
		return nil
	})
}

// ListEntries returns all entries in sequence order
func (s *Storage) ListEntries(ctx context.Context) ([]*models.OutboxEntry, error) {
	var entries []*models.OutboxEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		if bucket == nil {
			return fmt.Errorf("outbox bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			entry := &models.OutboxEntry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return fmt.Errorf("failed to unmarshal outbox entry: %w", err)
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

// ClearEntries removes all entries
func (s *Storage) ClearEntries(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketOutbox, bucketOutboxIndex} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to delete %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to recreate %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// seqKey encodes a sequence number as a big-endian key so byte order matches
// numeric order
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
