package repository

import (
	"context"
	"time"

	"github.com/fastygo/portal/domain"
)

// SessionRepository stores server-side sessions issued by the credential backend.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	// DeleteByUser revokes every session of a user and returns how many existed.
	DeleteByUser(ctx context.Context, userID string) (int, error)
	// Extend moves a live session's expiry to expiresAt with a key TTL of ttl.
	Extend(ctx context.Context, id string, expiresAt time.Time, ttl time.Duration) error
}

// LocalSessionRepository keeps the single persisted session reference of a
// client under a fixed application key. Load returns domain.ErrSessionNotFound
// when nothing is stored and domain.ErrSessionCorrupt when the value cannot be read.
type LocalSessionRepository interface {
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Clear(ctx context.Context) error
}
