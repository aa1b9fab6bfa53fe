package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/portal/domain"
)

type captureSink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (s *captureSink) Record(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *captureSink) Events() []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SecurityEvent(nil), s.events...)
}

type gateSink struct {
	entered chan struct{}
	gate    chan struct{}
	count   int
	mu      sync.Mutex
}

func newGateSink() *gateSink {
	return &gateSink{entered: make(chan struct{}, 16), gate: make(chan struct{})}
}

func (s *gateSink) Record(context.Context, domain.SecurityEvent) error {
	s.entered <- struct{}{}
	<-s.gate
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

type panicSink struct{}

func (panicSink) Record(context.Context, domain.SecurityEvent) error {
	panic("sink exploded")
}

func TestEmitterDeliversInOrder(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &captureSink{}
	e := NewEmitter(sink, Config{BufferSize: 8}, nil, WithClock(func() time.Time { return fixed }))

	e.Record(domain.EventUserLogin, map[string]any{"email": "a@b.com"}, "u1")
	e.Record(domain.EventLoginFailed, nil, "")
	e.Close()

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventUserLogin, events[0].Kind)
	assert.Equal(t, "u1", events[0].Actor())
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, domain.EventLoginFailed, events[1].Kind)
	assert.Nil(t, events[1].ActorID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, Stats{Delivered: 2}, e.Stats())
}

func TestEmitterCopiesPayload(t *testing.T) {
	sink := &captureSink{}
	e := NewEmitter(sink, Config{}, nil)

	payload := map[string]any{"code": "UNAUTHORIZED"}
	e.Record(domain.EventLoginFailed, payload, "")
	payload["code"] = "mutated"
	e.Close()

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, "UNAUTHORIZED", sink.Events()[0].Payload["code"])
}

func TestEmitterSwallowsSinkFailures(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unavailable")}
	e := NewEmitter(sink, Config{}, nil)

	assert.NotPanics(t, func() {
		e.Record(domain.EventUserLogout, nil, "u1")
	})
	e.Close()

	assert.Equal(t, Stats{Failed: 1}, e.Stats())
}

func TestEmitterRecoversSinkPanic(t *testing.T) {
	e := NewEmitter(panicSink{}, Config{}, nil)
	e.Record(domain.EventUserLogout, nil, "u1")
	e.Record(domain.EventUserLogin, nil, "u1")
	e.Close()

	assert.Equal(t, uint64(2), e.Stats().Failed)
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	sink := newGateSink()
	e := NewEmitter(sink, Config{BufferSize: 1}, nil)

	e.Record(domain.EventUserLogin, nil, "u1")
	<-sink.entered // worker holds the first event

	e.Record(domain.EventUserLogout, nil, "u1") // fills the queue
	e.Record(domain.EventLoginFailed, nil, "")  // dropped

	close(sink.gate)
	e.Close()

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(2), stats.Delivered)
}

func TestEmitterIgnoresRecordsAfterClose(t *testing.T) {
	sink := &captureSink{}
	e := NewEmitter(sink, Config{}, nil)
	e.Close()
	e.Close()

	e.Record(domain.EventUserLogin, nil, "u1")
	assert.Empty(t, sink.Events())

	var nilEmitter *Emitter
	assert.NotPanics(t, func() {
		nilEmitter.Record(domain.EventUserLogin, nil, "u1")
		nilEmitter.Close()
	})
}

func TestEmitterCloseLeavesNothingQueued(t *testing.T) {
	for round := 0; round < 50; round++ {
		sink := &captureSink{}
		e := NewEmitter(sink, Config{BufferSize: 1024}, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 50; i++ {
					e.Record(domain.EventUserLogin, nil, "u1")
				}
			}()
		}
		close(start)
		e.Close()
		wg.Wait()

		require.Empty(t, e.ch, "events stranded after close")
		stats := e.Stats()
		assert.Equal(t, uint64(len(sink.Events())), stats.Delivered)
		assert.Zero(t, stats.Dropped)
	}
}

func TestEmitterWithoutSinkLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := NewEmitter(nil, Config{}, zap.New(core))

	e.Record(domain.EventSessionExpired, nil, "u1")
	e.Close()

	entries := logs.FilterMessage("security event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "session_expired", entries[0].ContextMap()["kind"])
}
