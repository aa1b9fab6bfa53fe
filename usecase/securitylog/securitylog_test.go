package securitylog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

type memoryEvents struct {
	events    []domain.SecurityEvent
	appendErr error
	filter    repository.SecurityEventFilter
}

func (m *memoryEvents) Append(_ context.Context, event *domain.SecurityEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryEvents) List(_ context.Context, filter repository.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	m.filter = filter
	return m.events, nil
}

type userTable map[string]*domain.User

func (u userTable) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := u[id]; ok {
		return user.Clone(), nil
	}
	return nil, domain.ErrUserNotFound
}

func (u userTable) GetByEmail(context.Context, string) (*repository.UserRecord, error) {
	return nil, domain.ErrUserNotFound
}

func (u userTable) Create(context.Context, *repository.UserRecord) error { return nil }

func (u userTable) Upsert(context.Context, *domain.User) error { return nil }

func (u userTable) UpdateStatus(context.Context, string, string) error { return nil }

type eventBuffer struct {
	events []domain.SecurityEvent
}

func (b *eventBuffer) BufferProfile(context.Context, string, *domain.User) error { return nil }

func (b *eventBuffer) BufferSecurityEvent(_ context.Context, event *domain.SecurityEvent) error {
	b.events = append(b.events, *event)
	return nil
}

var users = userTable{
	"admin":  {ID: "admin", Role: "member", Metadata: map[string]string{domain.MetaRoles: "admin"}},
	"mod":    {ID: "mod", Role: "moderator"},
	"member": {ID: "member", Role: "member"},
}

func TestRecordValidates(t *testing.T) {
	uc := New(&memoryEvents{}, users, nil, nil)
	now := time.Now()

	cases := map[string]domain.SecurityEvent{
		"unknown kind":      {Kind: "password_changed", Timestamp: now},
		"missing timestamp": {Kind: domain.EventUserLogin},
		"future timestamp":  {Kind: domain.EventUserLogin, Timestamp: now.Add(time.Hour)},
		"bad id":            {ID: "not-a-uuid", Kind: domain.EventUserLogin, Timestamp: now},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Record(context.Background(), event)
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
		})
	}
}

func TestRecordStoresEvent(t *testing.T) {
	store := &memoryEvents{}
	uc := New(store, users, nil, nil)
	empty := ""

	stored, err := uc.Record(context.Background(), domain.SecurityEvent{
		Kind:      domain.EventLoginFailed,
		Payload:   map[string]any{"email": "ann@example.com"},
		ActorID:   &empty,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	_, parseErr := uuid.Parse(stored.ID)
	assert.NoError(t, parseErr)
	assert.Nil(t, stored.ActorID)
	require.Len(t, store.events, 1)
	assert.Equal(t, time.UTC, store.events[0].Timestamp.Location())
	assert.NotContains(t, store.events[0].Payload, UnverifiedActorKey)
}

func TestRecordMarksClaimedActorUnverified(t *testing.T) {
	store := &memoryEvents{}
	uc := New(store, users, nil, nil)
	payload := map[string]any{"reason": "expired", UnverifiedActorKey: false}

	stored, err := uc.Record(context.Background(), domain.SecurityEvent{
		Kind:      domain.EventSessionExpired,
		Payload:   payload,
		ActorID:   domain.ActorRef("admin"),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", stored.Actor())
	require.Len(t, store.events, 1)
	assert.Equal(t, true, store.events[0].Payload[UnverifiedActorKey])
	assert.Equal(t, "expired", store.events[0].Payload["reason"])
	assert.Equal(t, false, payload[UnverifiedActorKey], "caller payload must not be mutated")

	_, err = uc.Record(context.Background(), domain.SecurityEvent{Kind: domain.EventUserLogout, ActorID: domain.ActorRef("member"), Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{UnverifiedActorKey: true}, store.events[1].Payload)
}

func TestRecordFallsBackToBuffer(t *testing.T) {
	buffer := &eventBuffer{}
	uc := New(&memoryEvents{appendErr: errors.New("pg down")}, users, buffer, nil)

	event := domain.SecurityEvent{ID: uuid.NewString(), Kind: domain.EventUserLogout, Timestamp: time.Now(), ActorID: domain.ActorRef("u1")}
	_, err := uc.Record(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, buffer.events, 1)
	assert.Equal(t, event.ID, buffer.events[0].ID)
	assert.Equal(t, true, buffer.events[0].Payload[UnverifiedActorKey])

	_, err = New(&memoryEvents{appendErr: errors.New("pg down")}, users, nil, nil).Record(context.Background(), event)
	assert.EqualError(t, err, "pg down")
}

func TestListRequiresAdmin(t *testing.T) {
	store := &memoryEvents{}
	uc := New(store, users, nil, nil)
	filter := repository.SecurityEventFilter{ActorID: "u1", Kind: domain.EventUserLogin, Limit: 10}

	events, err := uc.List(context.Background(), "admin", filter)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Equal(t, filter, store.filter)

	_, err = uc.List(context.Background(), "mod", filter)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = uc.List(context.Background(), "member", filter)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = uc.List(context.Background(), "ghost", filter)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = uc.List(context.Background(), "admin", repository.SecurityEventFilter{Kind: "nope"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}
