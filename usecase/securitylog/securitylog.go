// Package securitylog is the server side of the audit trail: it accepts
// security events from clients and serves them to administrators.
package securitylog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/usecase"
)

// maxClockSkew bounds how far in the future a client timestamp may be.
const maxClockSkew = 5 * time.Minute

// UnverifiedActorKey marks events whose actor id was asserted by an
// unauthenticated client and never checked against a session.
const UnverifiedActorKey = "unverified_actor"

type UseCase struct {
	events repository.SecurityEventRepository
	users  repository.UserRepository
	buffer usecase.OperationBuffer
	logger *zap.Logger
	now    func() time.Time
}

func New(events repository.SecurityEventRepository, users repository.UserRepository, buffer usecase.OperationBuffer, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		events: events,
		users:  users,
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// Record stores one event. When the store is unavailable the event is buffered
// and replayed later; the caller still gets success. Ingest is anonymous, so an
// event that names an actor is stored with UnverifiedActorKey set in its payload.
func (uc *UseCase) Record(ctx context.Context, event domain.SecurityEvent) (*domain.SecurityEvent, error) {
	if !event.Kind.Known() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "unknown event kind")
	}
	if event.Timestamp.IsZero() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "timestamp is required")
	}
	if event.Timestamp.After(uc.now().Add(maxClockSkew)) {
		return nil, domain.NewError(domain.ErrCodeInvalid, "timestamp is in the future")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		return nil, domain.NewError(domain.ErrCodeInvalid, "id must be a uuid")
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.ActorID != nil && *event.ActorID == "" {
		event.ActorID = nil
	}
	if event.ActorID != nil {
		payload := make(map[string]any, len(event.Payload)+1)
		for k, v := range event.Payload {
			payload[k] = v
		}
		payload[UnverifiedActorKey] = true
		event.Payload = payload
	}

	if err := uc.events.Append(ctx, &event); err != nil {
		if uc.buffer == nil {
			return nil, err
		}
		if bufErr := uc.buffer.BufferSecurityEvent(ctx, &event); bufErr != nil {
			uc.logger.Error("failed to buffer security event", zap.String("id", event.ID), zap.Error(bufErr))
			return nil, err
		}
		uc.logger.Warn("security event buffered due to repository error", zap.String("id", event.ID), zap.Error(err))
	}
	return &event, nil
}

// List returns events newest first. Only administrators may read the trail.
func (uc *UseCase) List(ctx context.Context, requesterID string, filter repository.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	requester, err := uc.users.GetByID(ctx, requesterID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if !domain.ResolveRole(requester).Allows(domain.RoleAdmin) {
		return nil, domain.ErrForbidden
	}
	if filter.Kind != "" && !filter.Kind.Known() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "unknown event kind")
	}
	events, err := uc.events.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.SecurityEvent{}
	}
	return events, nil
}
