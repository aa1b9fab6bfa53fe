package repository

import (
	"context"
	"time"
)

// VerificationRepository stores one-time email verification tokens.
type VerificationRepository interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Consume returns the user id bound to the token and deletes it atomically.
	Consume(ctx context.Context, token string) (string, error)
}
