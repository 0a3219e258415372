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

	"github.com/parishdesk/parishdesk/internal/accounts"
	"github.com/parishdesk/parishdesk/internal/app"
	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/notify"
	"github.com/parishdesk/parishdesk/internal/observability"
	"github.com/parishdesk/parishdesk/internal/platform/cache"
	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/provision"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionTTL)

	accountRepo := accounts.NewRepository(dbpool)
	accountService := accounts.NewService(accountRepo)
	authHandler := accounts.NewHandler(logger, accountService, sessionManager)

	rbacRepo := rbac.NewRepository(dbpool)
	registry := rbac.NewRegistry(rbacRepo)
	assignments := rbac.NewAssignments(rbacRepo, rbacRepo)
	resolver := rbac.NewResolver(rbacRepo)

	metrics := observability.NewMetrics()
	guard := rbac.Middleware{Resolver: resolver, Logger: logger, Metrics: metrics}
	rbacHandler := rbac.NewHandler(logger, registry, assignments, resolver, guard)

	mailer := notify.NewMailer(logger, asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err := mailer.Init(); err != nil {
		logger.Warn("mailer init", slog.Any("error", err))
	}
	defer func() {
		if err := mailer.Shutdown(); err != nil {
			logger.Warn("mailer shutdown", slog.Any("error", err))
		}
	}()

	directoryRepo := directory.NewRepository(dbpool)
	importStore := provision.NewImportStore(dbpool)
	provisioner := provision.NewProvisioner(logger, accountService, registry, assignments, directoryRepo, importStore, mailer, metrics)
	provisionHandler := provision.NewHandler(logger, provisioner, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		AuthHandler:      authHandler,
		RBACHandler:      rbacHandler,
		ProvisionHandler: provisionHandler,
		JobHandler:       jobHandler,
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
