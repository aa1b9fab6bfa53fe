package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/infrastructure/buffer"
	"github.com/fastygo/portal/repository"
)

type onlineFlag struct {
	mu     sync.Mutex
	online bool
}

func (o *onlineFlag) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *onlineFlag) set(v bool) {
	o.mu.Lock()
	o.online = v
	o.mu.Unlock()
}

type flakyUsers struct {
	fail    bool
	upserts []domain.User
}

func (f *flakyUsers) GetByID(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (f *flakyUsers) GetByEmail(context.Context, string) (*repository.UserRecord, error) {
	return nil, domain.ErrUserNotFound
}

func (f *flakyUsers) Create(context.Context, *repository.UserRecord) error { return nil }

func (f *flakyUsers) Upsert(_ context.Context, user *domain.User) error {
	if f.fail {
		return errors.New("pg down")
	}
	f.upserts = append(f.upserts, *user)
	return nil
}

func (f *flakyUsers) UpdateStatus(context.Context, string, string) error { return nil }

type flakyEvents struct {
	fail   bool
	events []domain.SecurityEvent
}

func (f *flakyEvents) Append(_ context.Context, event *domain.SecurityEvent) error {
	if f.fail {
		return errors.New("pg down")
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *flakyEvents) List(context.Context, repository.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	return f.events, nil
}

func newProcessor(t *testing.T, online *onlineFlag, users *flakyUsers, events *flakyEvents) (*BufferProcessor, *buffer.Store) {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"), "buffer")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewBufferProcessor(store, online, users, events, nil, ProcessorConfig{MaxRetries: 2}), store
}

func TestBridgeWritesThroughWhenOnline(t *testing.T) {
	online := &onlineFlag{online: true}
	users, events := &flakyUsers{}, &flakyEvents{}
	processor, _ := newProcessor(t, online, users, events)
	bridge := NewBufferBridge(processor)

	event := &domain.SecurityEvent{ID: uuid.NewString(), Kind: domain.EventUserLogin, ActorID: domain.ActorRef("u1"), Timestamp: time.Now().UTC()}
	require.NoError(t, bridge.BufferSecurityEvent(context.Background(), event))
	require.NoError(t, bridge.BufferProfile(context.Background(), buffer.OperationUpdate, &domain.User{ID: "u1", DisplayName: "Ann"}))

	assert.Zero(t, processor.Size())
	require.Len(t, events.events, 1)
	assert.Equal(t, event.ID, events.events[0].ID)
	require.Len(t, users.upserts, 1)
	assert.Equal(t, "Ann", users.upserts[0].DisplayName)
}

func TestBridgeBuffersAndDrainsInPriorityOrder(t *testing.T) {
	online := &onlineFlag{}
	users, events := &flakyUsers{}, &flakyEvents{}
	processor, store := newProcessor(t, online, users, events)
	bridge := NewBufferBridge(processor)

	require.NoError(t, bridge.BufferProfile(context.Background(), buffer.OperationUpdate, &domain.User{ID: "u1"}))
	event := &domain.SecurityEvent{ID: uuid.NewString(), Kind: domain.EventUserLogout, ActorID: domain.ActorRef("u1"), Timestamp: time.Now().UTC()}
	require.NoError(t, bridge.BufferSecurityEvent(context.Background(), event))
	assert.Equal(t, 2, processor.Size())

	items, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, buffer.EntitySecurityEvent, items[0].Entity)
	assert.Equal(t, event.ID, items[0].ID)
	assert.Equal(t, "u1", items[0].UserID)

	require.NoError(t, processor.Drain(context.Background()))
	assert.Equal(t, 2, processor.Size(), "offline drain is a no-op")

	online.set(true)
	require.NoError(t, processor.Drain(context.Background()))
	assert.Zero(t, processor.Size())
	assert.Len(t, events.events, 1)
	assert.Len(t, users.upserts, 1)
}

func TestDrainDropsItemAfterMaxRetries(t *testing.T) {
	online := &onlineFlag{}
	events := &flakyEvents{fail: true}
	processor, _ := newProcessor(t, online, &flakyUsers{}, events)
	bridge := NewBufferBridge(processor)

	event := &domain.SecurityEvent{ID: uuid.NewString(), Kind: domain.EventUserLogin, Timestamp: time.Now().UTC()}
	require.NoError(t, bridge.BufferSecurityEvent(context.Background(), event))

	online.set(true)
	require.NoError(t, processor.Drain(context.Background()))
	assert.Equal(t, 1, processor.Size())

	require.NoError(t, processor.Drain(context.Background()))
	assert.Zero(t, processor.Size())
	assert.Empty(t, events.events)
}

func TestBridgeRejectsIncompleteInput(t *testing.T) {
	processor, _ := newProcessor(t, &onlineFlag{}, &flakyUsers{}, &flakyEvents{})
	bridge := NewBufferBridge(processor)

	assert.ErrorIs(t, bridge.BufferSecurityEvent(context.Background(), &domain.SecurityEvent{}), domain.ErrInvalidPayload)
	assert.ErrorIs(t, bridge.BufferProfile(context.Background(), buffer.OperationUpdate, nil), domain.ErrInvalidPayload)
	assert.ErrorIs(t, NewBufferBridge(nil).BufferSecurityEvent(context.Background(), &domain.SecurityEvent{ID: "x"}), domain.ErrInvalidPayload)
}

func TestUnsupportedEntityIsRejected(t *testing.T) {
	processor, _ := newProcessor(t, &onlineFlag{online: true}, &flakyUsers{}, &flakyEvents{})
	err := processor.processItem(context.Background(), buffer.Item{Entity: "task"})
	assert.EqualError(t, err, "unsupported entity task")
}

func TestBufferOperationReportsFullBuffer(t *testing.T) {
	store, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"), "buffer", buffer.Options{MaxItems: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	processor := NewBufferProcessor(store, &onlineFlag{}, &flakyUsers{}, &flakyEvents{}, nil, ProcessorConfig{})
	bridge := NewBufferBridge(processor)

	require.NoError(t, bridge.BufferProfile(context.Background(), buffer.OperationUpdate, &domain.User{ID: "u1"}))
	err = bridge.BufferProfile(context.Background(), buffer.OperationUpdate, &domain.User{ID: "u2"})
	assert.ErrorIs(t, err, buffer.ErrFull)
	assert.Equal(t, 1, processor.Size())
}
