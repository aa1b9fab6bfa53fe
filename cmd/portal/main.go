package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/portal/api/handler"
	"github.com/fastygo/portal/api/portal"
	"github.com/fastygo/portal/internal/auditsink"
	"github.com/fastygo/portal/internal/config"
	"github.com/fastygo/portal/internal/credential"
	"github.com/fastygo/portal/internal/guard"
	"github.com/fastygo/portal/internal/infrastructure/boltdb"
	"github.com/fastygo/portal/internal/infrastructure/monitor"
	"github.com/fastygo/portal/internal/router"
	"github.com/fastygo/portal/internal/services"
	"github.com/fastygo/portal/internal/services/lifecycle"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/pkg/logger"
	boltRepo "github.com/fastygo/portal/repository/bolt"
	"github.com/fastygo/portal/usecase/audit"
	"github.com/fastygo/portal/usecase/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidatePortal(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName + "-portal",
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, cancel, zapLogger)
	manager.Listen()

	db, err := boltdb.Open(cfg.Portal.SessionPath, boltRepo.DefaultBucket)
	if err != nil {
		zapLogger.Fatal("failed to open session store", zap.Error(err))
	}
	manager.Register("session_db", func(ctx context.Context) error {
		return db.Close()
	})
	localSessions := boltRepo.NewLocalSessionRepository(db, boltRepo.DefaultBucket, cfg.Portal.SessionKey)

	credentials := credential.New(credential.Config{
		BaseURL: cfg.Portal.BackendURL,
		Timeout: cfg.Portal.RequestTimeout,
	}, zapLogger)

	emitter := audit.NewEmitter(
		auditsink.Multi{auditsink.NewHTTPSink(credentials.Transport()), auditsink.NewLogSink(zapLogger)},
		audit.Config{
			BufferSize:      cfg.Portal.AuditBufferSize,
			DeliveryTimeout: cfg.Portal.AuditDeliveryTimeout,
		},
		zapLogger,
	)
	manager.Register("audit_emitter", func(ctx context.Context) error {
		emitter.Close()
		return nil
	})

	store := session.New(credentials, localSessions, emitter, zapLogger, session.Config{
		RequestTimeout: cfg.Portal.RequestTimeout,
	})

	restoreCtx, restoreCancel := context.WithTimeout(appCtx, cfg.Context.RequestTimeout)
	state := store.Restore(restoreCtx)
	restoreCancel()
	zapLogger.Info("session state at boot", zap.String("state", state.String()))

	refresher := services.NewSessionRefresher(store, cfg.Portal.RefreshInterval, zapLogger)
	refresher.Start()
	manager.Register("session_refresher", func(ctx context.Context) error {
		refresher.Stop(ctx)
		return nil
	})

	mon := monitor.New(30*time.Second, zapLogger,
		monitor.BoltProbe("session_store", db, true),
		monitor.Probe{Name: "identity_backend", Timeout: cfg.Portal.RequestTimeout, Check: credentials.Transport().Ping},
	)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Portal.RequestTimeout)
	g := guard.New(store, guard.Config{SignInPath: cfg.Portal.SignInPath}, zapLogger)
	r := router.NewPortal(router.PortalHandlers{
		Pages:  portal.New(store, cfg.Portal.SignInPath, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger).Check,
	}, g, cfg.Portal.SignInPath)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName + "-portal",
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("portal started", zap.String("address", cfg.PortalAddress()))
		return server.ListenAndServe(cfg.PortalAddress())
	})

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
