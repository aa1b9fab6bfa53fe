package repository

import (
	"context"

	"github.com/fastygo/portal/domain"
)

type SecurityEventFilter struct {
	ActorID string
	Kind    domain.SecurityEventKind
	Limit   int
	Offset  int
}

type SecurityEventRepository interface {
	Append(ctx context.Context, event *domain.SecurityEvent) error
	List(ctx context.Context, filter SecurityEventFilter) ([]domain.SecurityEvent, error)
}
