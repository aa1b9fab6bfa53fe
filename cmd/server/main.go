package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/portal/api/handler"
	"github.com/fastygo/portal/internal/config"
	"github.com/fastygo/portal/internal/infrastructure/buffer"
	"github.com/fastygo/portal/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/portal/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/portal/internal/infrastructure/redis"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/internal/router"
	"github.com/fastygo/portal/internal/services"
	"github.com/fastygo/portal/internal/services/lifecycle"
	"github.com/fastygo/portal/internal/token"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/pkg/logger"
	"github.com/fastygo/portal/repository/postgres"
	redisRepo "github.com/fastygo/portal/repository/redis"
	authUC "github.com/fastygo/portal/usecase/auth"
	profileUC "github.com/fastygo/portal/usecase/profile"
	"github.com/fastygo/portal/usecase/securitylog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
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

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "buffer", buffer.Options{MaxItems: cfg.Buffer.MaxSize})
	if err != nil {
		zapLogger.Fatal("failed to open buffer store", zap.Error(err))
	}
	manager.Register("buffer", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(10*time.Second, zapLogger,
		monitor.PostgresProbe(pool),
		monitor.RedisProbe(redisClient),
		monitor.BufferProbe(bufferStore),
	)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	userRepo := postgres.NewUserRepository(pool)
	eventRepo := postgres.NewSecurityEventRepository(pool)
	sessionRepo := redisRepo.NewSessionRepository(redisClient, cfg.Auth.SessionTTL)
	verificationRepo := redisRepo.NewVerificationRepository(redisClient)

	tokens, err := token.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		zapLogger.Fatal("token manager", zap.Error(err))
	}

	bufferProcessor := services.NewBufferProcessor(
		bufferStore,
		mon,
		userRepo,
		eventRepo,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  50,
			MaxRetries: cfg.Buffer.MaxRetry,
			Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
		},
	)
	bufferProcessor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		bufferProcessor.Stop(ctx)
		return nil
	})

	bufferBridge := services.NewBufferBridge(bufferProcessor)

	authUseCase := authUC.New(userRepo, sessionRepo, verificationRepo, tokens, authUC.Config{
		SessionTTL:          cfg.Auth.SessionTTL,
		BcryptCost:          cfg.Auth.BcryptCost,
		RequireVerification: cfg.Auth.RequireVerification,
		VerificationTTL:     cfg.Auth.VerificationTTL,
	}, zapLogger)
	profileUseCase := profileUC.New(userRepo, bufferBridge, zapLogger)
	securityLog := securitylog.New(eventRepo, userRepo, bufferBridge, zapLogger)

	var adapterOpts []httpcontext.Option
	if cfg.HTTP.TrustProxy {
		adapterOpts = append(adapterOpts, httpcontext.TrustForwardedFor())
	}
	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, adapterOpts...)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Audit:   apiHandler.NewAuditHandler(securityLog, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(tokens, sessionRepo, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
		Concurrency:  cfg.HTTP.MaxConn,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
