package usecase

import (
	"context"

	"github.com/fastygo/portal/domain"
)

// OperationUpdate marks a buffered profile write.
const OperationUpdate = "update"

// OperationBuffer accepts writes that could not reach Postgres. Security
// events are append-only; profile writes are replayed as upserts.
type OperationBuffer interface {
	BufferProfile(ctx context.Context, operation string, user *domain.User) error
	BufferSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error
}
