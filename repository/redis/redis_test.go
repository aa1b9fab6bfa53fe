package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redislib.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionRepositoryRoundTripOmitsSecrets(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)
	ctx := context.Background()

	session := &domain.Session{
		ID:        "s1",
		UserID:    "u1",
		Token:     "secret-token",
		User:      &domain.User{ID: "u1", Email: "a@b.com"},
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, repo.Save(ctx, session))

	raw, err := mr.Get("session:s1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret-token")
	assert.NotContains(t, raw, "a@b.com")
	assert.Greater(t, mr.TTL("session:s1"), 29*time.Minute)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.Token)
	assert.Nil(t, got.User)
}

func TestSessionRepositoryMissingAndDelete(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)
	ctx := context.Background()

	_, err := repo.Get(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	require.NoError(t, repo.Save(ctx, &domain.Session{ID: "s1", UserID: "u1"}))
	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.Get(ctx, "s1")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	assert.True(t, errors.Is(repo.Extend(ctx, "s1", time.Now().Add(time.Minute), time.Minute), domain.ErrSessionNotFound))
}

func TestSessionRepositoryRejectsIncompleteSession(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)

	assert.ErrorIs(t, repo.Save(context.Background(), &domain.Session{ID: "s1"}), domain.ErrInvalidPayload)
	assert.ErrorIs(t, repo.Save(context.Background(), nil), domain.ErrInvalidPayload)
}

func TestSessionRepositoryExtend(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &domain.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute)}))
	expiresAt := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.Extend(ctx, "s1", expiresAt, 2*time.Hour))
	assert.Equal(t, 2*time.Hour, mr.TTL("session:s1"))
	assert.Equal(t, 2*time.Hour, mr.TTL("user_sessions:u1"))

	stored, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(stored.ExpiresAt))
	assert.Equal(t, "u1", stored.UserID)
}

func TestSessionRepositoryDeleteByUser(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &domain.Session{ID: "s1", UserID: "u1"}))
	require.NoError(t, repo.Save(ctx, &domain.Session{ID: "s2", UserID: "u1"}))
	require.NoError(t, repo.Save(ctx, &domain.Session{ID: "s3", UserID: "u2"}))

	members, err := mr.Members("user_sessions:u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, members)

	require.NoError(t, repo.Delete(ctx, "s1"))
	members, err = mr.Members("user_sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)

	removed, err := repo.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, mr.Exists("session:s2"))
	assert.False(t, mr.Exists("user_sessions:u1"))
	assert.True(t, mr.Exists("session:s3"))

	removed, err = repo.DeleteByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSessionRepositoryDeletesUnreadableEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client, time.Hour)
	require.NoError(t, mr.Set("session:broken", "{not json"))

	_, err := repo.Get(context.Background(), "broken")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInternal))
	require.NoError(t, repo.Delete(context.Background(), "broken"))
	assert.False(t, mr.Exists("session:broken"))
}

func TestVerificationRepositoryConsumesOnce(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewVerificationRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "tok", "u1", time.Hour))
	userID, err := repo.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = repo.Consume(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)

	require.NoError(t, repo.Save(ctx, "tok2", "u2", time.Minute))
	mr.FastForward(2 * time.Minute)
	_, err = repo.Consume(ctx, "tok2")
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)
}
