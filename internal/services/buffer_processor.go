package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/infrastructure/buffer"
	"github.com/fastygo/portal/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Retention drops items that could not be replayed within this window.
	Retention time.Duration
}

// BufferProcessor replays profile writes and security events that were
// buffered while Postgres was unavailable.
type BufferProcessor struct {
	store     *buffer.Store
	monitor   ConnectionHealth
	userRepo  repository.UserRepository
	eventRepo repository.SecurityEventRepository
	logger    *zap.Logger
	cron      *cron.Cron
	cfg       ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	userRepo repository.UserRepository,
	eventRepo repository.SecurityEventRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:     store,
		monitor:   monitor,
		userRepo:  userRepo,
		eventRepo: eventRepo,
		logger:    logger,
		cfg:       cfg,
		cron:      cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started")
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Drain replays up to one batch. Items older than the retention window are
// discarded first; failed items go to the back of their priority class until
// MaxRetries is reached.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("postgres offline, buffer drain deferred")
		return nil
	}

	if removed, err := bp.store.Cleanup(time.Now().Add(-bp.cfg.Retention)); err != nil {
		bp.logger.Warn("buffer cleanup failed", zap.Error(err))
	} else if removed > 0 {
		bp.logger.Warn("expired buffer items discarded", zap.Int("count", removed))
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("read buffer batch: %w", err)
	}

	var replayed int
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := bp.processItem(ctx, item); err != nil {
			bp.retryLater(item, err)
			continue
		}
		replayed++
		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("replayed item left in buffer", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	if replayed > 0 {
		bp.logger.Info("buffer drained", zap.Int("replayed", replayed), zap.Int("batch", len(items)))
	}
	return nil
}

func (bp *BufferProcessor) retryLater(item buffer.Item, cause error) {
	item.Retries++
	log := bp.logger.With(
		zap.String("item_id", item.ID),
		zap.String("entity", item.Entity),
		zap.Int("retries", item.Retries),
	)
	if item.Retries >= bp.cfg.MaxRetries {
		log.Error("buffer item dropped after max retries", zap.Error(cause))
		_ = bp.store.Remove(item)
		return
	}
	log.Warn("buffer item replay failed", zap.Error(cause))
	if err := bp.store.Requeue(item); err != nil {
		log.Error("buffer item requeue failed", zap.Error(err))
	}
}

// BufferOperation writes through when Postgres is online and persists the
// item otherwise, or when the direct write fails.
func (bp *BufferProcessor) BufferOperation(ctx context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return errors.New("buffer processor not configured")
	}

	if bp.monitor == nil || bp.monitor.IsOnline() {
		err := bp.processItem(ctx, item)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrInvalidPayload) {
			return err
		}
		bp.logger.Warn("direct write failed, buffering", zap.String("entity", item.Entity), zap.Error(err))
	}
	if err := bp.store.Enqueue(item); err != nil {
		if errors.Is(err, buffer.ErrFull) {
			bp.logger.Error("buffer full, write lost", zap.String("entity", item.Entity), zap.String("item_id", item.ID))
		}
		return err
	}
	return nil
}

// Size returns the number of buffered items, or 0 if the store cannot be read.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	switch item.Entity {
	case buffer.EntityProfile:
		if bp.userRepo == nil {
			return errors.New("no user repository")
		}
		var user domain.User
		if err := item.Decode(&user); err != nil {
			return err
		}
		return bp.userRepo.Upsert(ctx, &user)

	case buffer.EntitySecurityEvent:
		if bp.eventRepo == nil {
			return errors.New("no security event repository")
		}
		if item.Operation != buffer.OperationAppend {
			return fmt.Errorf("unsupported operation %s on %s", item.Operation, item.Entity)
		}
		var event domain.SecurityEvent
		if err := item.Decode(&event); err != nil {
			return err
		}
		return bp.eventRepo.Append(ctx, &event)

	default:
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
}
