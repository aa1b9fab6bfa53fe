package services

import (
	"context"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/infrastructure/buffer"
	"github.com/fastygo/portal/usecase"
)

// BufferBridge adapts the processor to the use-case OperationBuffer port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferProfile(ctx context.Context, operation string, user *domain.User) error {
	if b.processor == nil || user == nil {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem("", buffer.EntityProfile, operation, buffer.PriorityProfile, user)
	if err != nil {
		return err
	}
	item.UserID = user.ID
	return b.processor.BufferOperation(ctx, item)
}

// BufferSecurityEvent keys the item by the event id so a replayed event is
// never stored twice.
func (b *BufferBridge) BufferSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	if b.processor == nil || event == nil || event.ID == "" {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(event.ID, buffer.EntitySecurityEvent, buffer.OperationAppend, buffer.PrioritySecurityEvent, event)
	if err != nil {
		return err
	}
	item.UserID = event.Actor()
	return b.processor.BufferOperation(ctx, item)
}

var _ usecase.OperationBuffer = (*BufferBridge)(nil)
