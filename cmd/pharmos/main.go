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

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	"github.com/pharmos-erp/pharmos-erp/internal/app"
	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	audithttp "github.com/pharmos-erp/pharmos-erp/internal/audit/http"
	"github.com/pharmos-erp/pharmos-erp/internal/auth"
	"github.com/pharmos-erp/pharmos-erp/internal/observability"
	"github.com/pharmos-erp/pharmos-erp/internal/platform/cache"
	"github.com/pharmos-erp/pharmos-erp/internal/platform/db"
	"github.com/pharmos-erp/pharmos-erp/internal/tenants"
	"github.com/pharmos-erp/pharmos-erp/internal/users"
	"github.com/pharmos-erp/pharmos-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	asynqClient := asynq.NewClient(redisOpts)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	recorder := audit.NewRecorder(dbpool)
	enqueuer := audit.NewEnqueuer(asynqClient, logger)

	tenantDir := tenants.NewDirectory(dbpool, redisClient, cfg.TenantStatusTTL)
	resolver := access.NewResolver(cfg.TokenSecret, tenantDir)

	catalog := access.NewCatalog()
	grantRepo := access.NewGrantRepository(dbpool)
	grantSource := access.NewGrantSource(grantRepo, redisClient, cfg.GrantCacheTTL)
	evaluator := access.NewEvaluator(catalog, grantSource)
	coordinator := access.NewCoordinator(evaluator, dbpool, recorder, enqueuer, metrics, logger)
	gate := access.NewGate(recorder, logger)

	userRepo := users.NewRepository(dbpool)
	authService := auth.NewService(userRepo, tenantDir, enqueuer, cfg.TokenSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService)

	grantsHandler := access.NewHandler(logger, catalog, coordinator, grantRepo, grantSource)

	timelineRepo := audit.NewTimelineRepository(dbpool)
	auditService := audit.NewService(timelineRepo)
	auditHandler := audithttp.NewHandler(logger, auditService, coordinator, gate)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		GrantsHandler:    grantsHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		AccessMiddleware: access.Middleware{Resolver: resolver, Logger: logger},
		Metrics:          metrics,
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
