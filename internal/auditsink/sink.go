// Package auditsink provides destinations for the audit emitter.
package auditsink

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/credential"
	"github.com/fastygo/portal/usecase"
)

const ingestPath = "/api/v1/audit/events"

// HTTPSink posts events to the backend ingest endpoint.
type HTTPSink struct {
	transport *credential.Transport
}

func NewHTTPSink(transport *credential.Transport) *HTTPSink {
	return &HTTPSink{transport: transport}
}

func (s *HTTPSink) Record(ctx context.Context, event domain.SecurityEvent) error {
	return s.transport.Do(ctx, fasthttp.MethodPost, ingestPath, "", event, nil)
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, event domain.SecurityEvent) error {
	s.logger.Info("security event",
		zap.String("id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("actor_id", event.Actor()),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// Multi delivers to every sink in order and joins their errors.
type Multi []usecase.AuditSink

func (m Multi) Record(ctx context.Context, event domain.SecurityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
