package repository

import (
	"context"

	"github.com/fastygo/portal/domain"
)

// UserRecord is a user together with its password hash. The hash never leaves
// the repository and use case layers.
type UserRecord struct {
	User         domain.User
	PasswordHash string
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, record *UserRecord) error
	Upsert(ctx context.Context, user *domain.User) error
	UpdateStatus(ctx context.Context, id, status string) error
}
