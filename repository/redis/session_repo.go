package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
)

// storedSession is the Redis value. It carries the session reference only;
// the bearer token and the user record are never written.
type storedSession struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type sessionRepository struct {
	client *redislib.Client
	ttl    time.Duration
}

// NewSessionRepository stores sessions under session:<id> with a TTL matching
// their expiry and indexes them per user under user_sessions:<user id>.
func NewSessionRepository(client *redislib.Client, ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{client: client, ttl: ttl}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redislib.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "stored session is unreadable", err)
	}
	return &domain.Session{
		ID:        stored.ID,
		UserID:    stored.UserID,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
		Metadata:  stored.Metadata,
	}, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" || session.UserID == "" {
		return domain.ErrInvalidPayload
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		session.ExpiresAt = session.CreatedAt.Add(r.ttl)
	}

	payload, err := encodeSession(session, session.ExpiresAt)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = r.ttl
	}
	index := userSessionPrefix + session.UserID
	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Set(ctx, sessionPrefix+session.ID, payload, ttl)
		pipe.SAdd(ctx, index, session.ID)
		pipe.Expire(ctx, index, r.ttl)
		return nil
	})
	return err
}

// Delete is idempotent.
func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) && !domain.IsDomainError(err, domain.ErrCodeInternal) {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, sessionPrefix+id)
		if session != nil {
			pipe.SRem(ctx, userSessionPrefix+session.UserID, id)
		}
		return nil
	})
	return err
}

// DeleteByUser revokes every session of userID and reports how many were live.
func (r *sessionRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	index := userSessionPrefix + userID
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionPrefix+id)
	}

	var removed *redislib.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		if len(keys) > 0 {
			removed = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// Extend rewrites the stored expiry and resets the key TTL. The key must
// still exist.
func (r *sessionRepository) Extend(ctx context.Context, id string, expiresAt time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	payload, err := encodeSession(session, expiresAt)
	if err != nil {
		return err
	}

	indexTTL := r.ttl
	if ttl > indexTTL {
		indexTTL = ttl
	}
	var replaced *redislib.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		replaced = pipe.SetXX(ctx, sessionPrefix+id, payload, ttl)
		pipe.Expire(ctx, userSessionPrefix+session.UserID, indexTTL)
		return nil
	})
	if err != nil {
		return err
	}
	if !replaced.Val() {
		return domain.ErrSessionNotFound
	}
	return nil
}

func encodeSession(session *domain.Session, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(storedSession{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: expiresAt,
		Metadata:  session.Metadata,
	})
}
