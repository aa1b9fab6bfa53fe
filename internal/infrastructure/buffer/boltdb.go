package buffer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/portal/internal/infrastructure/boltdb"
)

// ErrFull is returned by Enqueue once the buffer holds MaxItems entries.
var ErrFull = errors.New("buffer is full")

// Options bound the buffer.
type Options struct {
	// MaxItems caps the number of pending items. Zero means unbounded.
	MaxItems int
}

// Store persists writes (security events, profile updates) in bbolt while
// Postgres is unavailable. Items are ordered by priority then age, and an id
// index keeps at most one pending item per id.
type Store struct {
	db       *bolt.DB
	bucket   []byte
	index    []byte
	maxItems int
}

// Open initializes the BoltDB file and ensures the item and index buckets exist.
func Open(path string, bucket string, opts ...Options) (*Store, error) {
	if bucket == "" {
		bucket = "buffer"
	}
	index := bucket + "_ids"
	db, err := boltdb.Open(path, bucket, index)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		bucket: []byte(bucket),
		index:  []byte(index),
	}
	for _, o := range opts {
		s.maxItems = o.MaxItems
	}
	return s, nil
}

// Enqueue stores an item under a priority-aware key. An item with the same id
// replaces the pending one.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	item.normalize()
	key := []byte(buildKey(item))

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		items, ids := tx.Bucket(s.bucket), tx.Bucket(s.index)
		if previous := ids.Get([]byte(item.ID)); previous != nil {
			if err := items.Delete(previous); err != nil {
				return err
			}
		} else if s.maxItems > 0 && items.Stats().KeyN >= s.maxItems {
			return ErrFull
		}
		if err := items.Put(key, payload); err != nil {
			return err
		}
		return ids.Put([]byte(item.ID), key)
	})
}

// GetBatch returns up to limit items without removing them. Entries that no
// longer decode are skipped here and pruned by Cleanup.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Remove deletes the item. Items read by GetBatch carry their key; otherwise
// the id index is used.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(s.index)
		key := item.bucketKey
		if len(key) == 0 && item.ID != "" {
			key = ids.Get([]byte(item.ID))
		}
		if len(key) == 0 {
			return nil
		}
		if err := tx.Bucket(s.bucket).Delete(key); err != nil {
			return err
		}
		if item.ID != "" && bytes.Equal(ids.Get([]byte(item.ID)), key) {
			return ids.Delete([]byte(item.ID))
		}
		return nil
	})
}

// Requeue moves an item to the back of its priority class.
func (s *Store) Requeue(item Item) error {
	if err := s.Remove(item); err != nil {
		return err
	}
	item.bucketKey = nil
	item.Timestamp = time.Now()
	return s.Enqueue(item)
}

// Size returns the number of buffered items.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes items older than olderThan and entries that cannot be
// decoded. It returns how many entries were removed.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, ids := tx.Bucket(s.bucket), tx.Bucket(s.index)

		var stale [][]byte
		var staleIDs []string
		_ = items.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if item.Timestamp.Before(olderThan) {
				stale = append(stale, append([]byte(nil), k...))
				staleIDs = append(staleIDs, item.ID)
			}
			return nil
		})

		for _, k := range stale {
			if err := items.Delete(k); err != nil {
				return err
			}
		}
		for _, id := range staleIDs {
			if err := ids.Delete([]byte(id)); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildKey(item Item) string {
	return fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID)
}
