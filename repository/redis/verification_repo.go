package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

type verificationRepository struct {
	client *redislib.Client
	prefix string
}

// NewVerificationRepository stores verification tokens as expiring keys.
func NewVerificationRepository(client *redislib.Client) repository.VerificationRepository {
	return &verificationRepository{
		client: client,
		prefix: "verify:",
	}
}

func (r *verificationRepository) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" {
		return domain.ErrInvalidPayload
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return r.client.Set(ctx, r.key(token), userID, ttl).Err()
}

func (r *verificationRepository) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrVerificationExpired
	}
	userID, err := r.client.GetDel(ctx, r.key(token)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", domain.ErrVerificationExpired
		}
		return "", err
	}
	return userID, nil
}

func (r *verificationRepository) key(token string) string {
	return fmt.Sprintf("%s%s", r.prefix, token)
}
