package profile

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/usecase"
)

// Update carries the fields a user may change on their own profile.
type Update struct {
	DisplayName *string
	Metadata    map[string]string
}

type UseCase struct {
	users  repository.UserRepository
	buffer usecase.OperationBuffer
	logger *zap.Logger
}

func New(users repository.UserRepository, buffer usecase.OperationBuffer, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		buffer: buffer,
		logger: logger,
	}
}

func (uc *UseCase) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return uc.users.GetByID(ctx, userID)
}

// UpdateProfile applies display name and metadata changes. Role grants in
// metadata are kept from the stored record and cannot be changed here.
func (uc *UseCase) UpdateProfile(ctx context.Context, userID string, update Update) (*domain.User, error) {
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if err := validation.Validate(name, validation.Required, validation.RuneLength(1, 100)); err != nil {
			return nil, domain.NewError(domain.ErrCodeInvalid, "display_name: "+err.Error())
		}
		update.DisplayName = &name
	}

	current, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user := current.Clone()
	if update.DisplayName != nil {
		user.DisplayName = *update.DisplayName
	}
	if update.Metadata != nil {
		metadata := make(map[string]string, len(update.Metadata)+1)
		for k, v := range update.Metadata {
			if k == domain.MetaRoles {
				continue
			}
			metadata[k] = v
		}
		if roles, ok := current.Metadata[domain.MetaRoles]; ok {
			metadata[domain.MetaRoles] = roles
		}
		user.Metadata = metadata
	}
	user.UpdatedAt = time.Now().UTC()

	if err := uc.users.Upsert(ctx, user); err != nil {
		if uc.buffer != nil {
			if bufErr := uc.buffer.BufferProfile(ctx, usecase.OperationUpdate, user); bufErr != nil {
				uc.logger.Error("failed to buffer profile update", zap.Error(bufErr))
				return nil, err
			}
			uc.logger.Warn("profile update buffered due to repository error", zap.Error(err))
			return user, nil
		}
		return nil, err
	}
	return user, nil
}
