package bolt

import (
	"context"
	"encoding/json"

	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

// DefaultBucket holds the portal's local state.
const DefaultBucket = "portal"

type localSessionRepository struct {
	db     *bbolt.DB
	bucket []byte
	key    []byte
}

// NewLocalSessionRepository keeps one session under a fixed key. The bucket must
// already exist (see boltdb.Open).
func NewLocalSessionRepository(db *bbolt.DB, bucket, key string) repository.LocalSessionRepository {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &localSessionRepository{
		db:     db,
		bucket: []byte(bucket),
		key:    []byte(key),
	}
}

func (r *localSessionRepository) Load(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.db == nil {
		return nil, bbolt.ErrDatabaseNotOpen
	}

	var raw []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(r.key); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, domain.ErrSessionCorrupt.Message, err)
	}
	if !session.Valid() {
		return nil, domain.ErrSessionCorrupt
	}
	return &session, nil
}

func (r *localSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !session.Valid() {
		return domain.ErrInvalidPayload
	}
	if r.db == nil {
		return bbolt.ErrDatabaseNotOpen
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(r.bucket)
		if err != nil {
			return err
		}
		return b.Put(r.key, payload)
	})
}

func (r *localSessionRepository) Clear(ctx context.Context) error {
	if r.db == nil {
		return bbolt.ErrDatabaseNotOpen
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}
		return b.Delete(r.key)
	})
}
