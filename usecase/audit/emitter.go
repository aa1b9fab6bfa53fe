// Package audit turns identity lifecycle transitions into security events and
// forwards them to an audit sink.
//
// Delivery is best effort and never transactional with authentication:
// Record only enqueues, a worker goroutine delivers, and sink failures are
// logged and counted. A full queue drops the event rather than blocking the
// caller.
package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/usecase"
)

// Config controls buffering and delivery.
type Config struct {
	BufferSize      int
	DeliveryTimeout time.Duration
}

// Stats reports delivery counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Option customizes the emitter.
type Option func(*Emitter)

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// Emitter asynchronously forwards security events to a sink.
type Emitter struct {
	cfg    Config
	sink   usecase.AuditSink
	logger *zap.Logger
	now    func() time.Time

	// mu orders enqueues before close: Record holds it shared while sending,
	// Close holds it exclusively while marking the emitter closed.
	mu     sync.RWMutex
	closed bool
	ch     chan domain.SecurityEvent
	done   chan struct{}
	wg     sync.WaitGroup

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewEmitter starts the delivery worker. A nil sink logs events instead.
func NewEmitter(sink usecase.AuditSink, cfg Config, logger *zap.Logger, opts ...Option) *Emitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Emitter{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		ch:     make(chan domain.SecurityEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = usecase.AuditSinkFunc(e.logEvent)
	}

	e.wg.Add(1)
	go e.run()

	return e
}

// Record builds an immutable event and enqueues it. It never blocks and never fails
// from the caller's point of view.
func (e *Emitter) Record(kind domain.SecurityEventKind, payload map[string]any, actorID string) {
	if e == nil {
		return
	}

	event := domain.SecurityEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   copyPayload(payload),
		ActorID:   domain.ActorRef(actorID),
		Timestamp: e.now().UTC(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
		e.logger.Warn("security event dropped, queue full",
			zap.String("event_id", event.ID),
			zap.String("kind", string(kind)))
	}
}

// Close stops accepting events and waits until queued events are delivered.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns the delivery counters.
func (e *Emitter) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return Stats{
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case event := <-e.ch:
			e.deliver(event)
		case <-e.done:
			for {
				select {
				case event := <-e.ch:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(event domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DeliveryTimeout)
	defer cancel()

	if err := e.safeRecord(ctx, event); err != nil {
		e.failed.Add(1)
		e.logger.Warn("security event delivery failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
		return
	}
	e.delivered.Add(1)
}

func (e *Emitter) safeRecord(ctx context.Context, event domain.SecurityEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit sink panic: %v", r)
		}
	}()
	return e.sink.Record(ctx, event)
}

func (e *Emitter) logEvent(_ context.Context, event domain.SecurityEvent) error {
	e.logger.Info("security event",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("actor_id", event.Actor()),
		zap.Any("payload", event.Payload),
		zap.Time("timestamp", event.Timestamp))
	return nil
}

func copyPayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
