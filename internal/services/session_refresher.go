package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
)

// SessionSource is the part of the session store the refresher drives.
type SessionSource interface {
	State() domain.AuthState
	Refresh(ctx context.Context) error
}

// SessionRefresher periodically revalidates the signed-in session against the
// credential backend so revoked sessions are expired locally.
type SessionRefresher struct {
	source   SessionSource
	logger   *zap.Logger
	cron     *cron.Cron
	interval time.Duration
}

func NewSessionRefresher(source SessionSource, interval time.Duration, logger *zap.Logger) *SessionRefresher {
	if interval < time.Second {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &SessionRefresher{
		source:   source,
		logger:   logger.Named("refresher"),
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		r.Tick(ctx)
	})
	return r
}

func (r *SessionRefresher) Start() {
	if r == nil || r.source == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("session refresher started", zap.Duration("interval", r.interval))
}

func (r *SessionRefresher) Stop(ctx context.Context) {
	if r == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// Tick refreshes once. It is a no-op unless a session is signed in.
func (r *SessionRefresher) Tick(ctx context.Context) {
	if r.source == nil || !r.source.State().IsAuthenticated() {
		return
	}
	if err := r.source.Refresh(ctx); err != nil {
		r.logger.Warn("session refresh failed",
			zap.String("code", string(domain.Classify(err).Code)),
			zap.Error(err))
		return
	}
	r.logger.Debug("session refreshed")
}
