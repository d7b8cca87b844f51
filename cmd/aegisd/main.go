package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-desktop/aegis/internal/app"
	"github.com/aegis-desktop/aegis/internal/audit"
	"github.com/aegis-desktop/aegis/internal/auth"
	"github.com/aegis-desktop/aegis/internal/authz"
	"github.com/aegis-desktop/aegis/internal/coordinator"
	"github.com/aegis-desktop/aegis/internal/crypto"
	"github.com/aegis-desktop/aegis/internal/gateway"
	jobmetrics "github.com/aegis-desktop/aegis/internal/jobs"
	"github.com/aegis-desktop/aegis/internal/observability"
	"github.com/aegis-desktop/aegis/internal/permission"
	"github.com/aegis-desktop/aegis/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	cryptoService, err := crypto.NewService(cfg.MasterKeyBytes())
	if err != nil {
		logger.Error("init crypto", slog.Any("error", err))
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.Config{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		MaxFailedLogins: cfg.MaxFailedLogins,
		LockoutDuration: cfg.LoginLockout,
		Issuer:          cfg.TokenIssuer,
		Audience:        cfg.TokenAudience,
	}, cryptoService, logger)
	if err != nil {
		logger.Error("init auth", slog.Any("error", err))
		os.Exit(1)
	}
	authHandler := auth.NewHandler(logger, authService)

	authzService := authz.NewService(authz.Config{DecisionTTL: cfg.DecisionTTL}, logger)
	authzService.AddPolicy(authz.HighPrivilegePolicy{})
	authzHandler := authz.NewHandler(logger, authzService)

	checker := permission.NewChecker(permission.CheckerConfig{ProbeTTL: cfg.ProbeTTL}, logger)
	elevator := permission.NewElevator(permission.ElevatorConfig{
		MaxFailures:     cfg.ElevationMaxFailures,
		SessionWindow:   cfg.ElevationSessionWindow,
		ReuseWindow:     cfg.ElevationReuseWindow,
		DefaultTimeout:  cfg.ElevationTimeout,
		PreferredMethod: cfg.ElevationMethod,
	}, permission.DiscoverMethods(logger), logger)

	gatewayService := gateway.NewService(gateway.Config{
		LockoutDuration: cfg.GatewayLockout,
		EventRetention:  cfg.EventRetention,
		BlockThreshold:  cfg.BlockThreshold,
	}, logger)
	gatewayHandler := gateway.NewHandler(logger, gatewayService)

	auditService := audit.NewService(cfg.AuditRetention, redisClient, logger)
	auditHandler := audit.NewHandler(logger, auditService)

	metrics := observability.NewMetrics()

	var responseCache coordinator.ResponseCache
	if redisClient != nil {
		responseCache = coordinator.NewRedisResponseCache(redisClient)
	} else {
		responseCache = coordinator.NewMemoryResponseCache()
	}

	coordinatorService := coordinator.NewService(coordinator.Config{
		ResponseTTL:        cfg.ResponseTTL,
		EnterprisePatterns: cfg.EnterprisePrefixes(),
	}, authService, authzService, checker, elevator, gatewayService, auditService, metrics, responseCache, logger)
	coordinatorHandler := coordinator.NewHandler(logger, coordinatorService)

	// Maintenance over the live in-process stores. The external worker
	// only maintains state shared through Redis.
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	maintenance := jobs.NewLocalMaintenance(jobs.LocalMaintenanceConfig{},
		logger,
		jobs.NewCacheSweepJob(logger, jobMetrics, authzService.DecisionCache(), checker.ProbeCache()),
		jobs.NewSessionSweepJob(logger, jobMetrics, gatewayService.Limiter(), jobs.SweeperFunc(elevator.SweepSessions)),
		jobs.NewAuditTrimJob(auditService, cfg.AuditMaxAge, logger, jobMetrics),
	)
	go maintenance.Run(ctx)

	var jobHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		AuthzHandler:       authzHandler,
		GatewayHandler:     gatewayHandler,
		AuditHandler:       auditHandler,
		CoordinatorHandler: coordinatorHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
