package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/portal/domain"
)

type fakeSource struct {
	state domain.AuthState
	err   error
	calls int
}

func (f *fakeSource) State() domain.AuthState { return f.state }

func (f *fakeSource) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func signedIn() domain.AuthState {
	return domain.Authenticated(&domain.Session{
		ID:        "s1",
		Token:     "tok",
		UserID:    "u1",
		User:      &domain.User{ID: "u1"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
}

func TestTickSkipsWhenSignedOut(t *testing.T) {
	source := &fakeSource{state: domain.Unauthenticated()}
	NewSessionRefresher(source, time.Minute, nil).Tick(context.Background())
	assert.Zero(t, source.calls)
}

func TestTickRefreshesSignedInSession(t *testing.T) {
	source := &fakeSource{state: signedIn()}
	NewSessionRefresher(source, time.Minute, nil).Tick(context.Background())
	assert.Equal(t, 1, source.calls)
}

func TestTickLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	source := &fakeSource{state: signedIn(), err: domain.ErrUnavailable}

	NewSessionRefresher(source, time.Minute, zap.New(core)).Tick(context.Background())

	entries := logs.FilterMessage("session refresh failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "UNAVAILABLE", entries[0].ContextMap()["code"])
	}
}

func TestRefresherStartStop(t *testing.T) {
	r := NewSessionRefresher(&fakeSource{}, 0, nil)
	assert.Equal(t, 5*time.Minute, r.interval)
	r.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
