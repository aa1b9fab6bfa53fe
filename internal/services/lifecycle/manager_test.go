package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInReverse(t *testing.T) {
	m := New(time.Second, nil, nil)
	var order []string
	m.Register("db", func(context.Context) error { order = append(order, "db"); return nil })
	m.Register("emitter", func(context.Context) error { order = append(order, "emitter"); return errors.New("drain timeout") })
	m.Register("http", func(context.Context) error { order = append(order, "http"); return nil })
	m.Register("nil", nil)

	err := m.Shutdown(context.Background())
	assert.EqualError(t, err, "drain timeout")
	assert.Equal(t, []string{"http", "emitter", "db"}, order)

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownAppliesTimeout(t *testing.T) {
	m := New(20*time.Millisecond, nil, nil)
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, m.Shutdown(context.Background()), context.DeadlineExceeded)
}

func TestGoCancelsOnFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(time.Second, cancel, nil)

	listenErr := errors.New("address already in use")
	m.Go("http_server", func() error { return listenErr })

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	require.ErrorIs(t, m.Shutdown(context.Background()), listenErr)
}

func TestGoIgnoresCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(time.Second, cancel, nil)

	finished := make(chan struct{})
	m.Go("worker", func() error { close(finished); return nil })
	<-finished

	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, ctx.Err())
}
