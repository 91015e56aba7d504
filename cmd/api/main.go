package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/coop-member-import/internal/api/http"
	"github.com/spec-kit/coop-member-import/internal/api/http/handlers"
	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/config"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/notify"
	"github.com/spec-kit/coop-member-import/internal/observability"
	"github.com/spec-kit/coop-member-import/internal/persistence"
	"github.com/spec-kit/coop-member-import/internal/repository"
	"github.com/spec-kit/coop-member-import/internal/scheduler"
	"github.com/spec-kit/coop-member-import/internal/service"
	"github.com/spec-kit/coop-member-import/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	memberRepo := repository.NewMemberRepository(pool)
	importRepo := repository.NewImportOperationRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	previewStore := repository.NewRedisPreviewStore(redis.Client, redis.KeyPrefix())

	dispatcher := events.NewQueuedDispatcher(cfg.Audit.QueueSize, logger)
	var mirror events.EventHandler
	var kafkaMirror *events.KafkaMirror
	if len(cfg.Audit.KafkaBrokers) > 0 {
		kafkaMirror = events.NewKafkaMirror(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		mirror = kafkaMirror.Handle
		logger.Info("audit events mirrored to kafka", zap.String("topic", cfg.Audit.KafkaTopic))
	}
	worker.StartAuditWorker(dispatcher, activityRepo, mirror, logger)
	go dispatcher.Run(context.Background())

	smsTransport, mq, err := buildSMSTransport(cfg.Notification, logger)
	if err != nil {
		logger.Fatal("failed to init sms transport", zap.Error(err))
	}
	defer mq.Close() //nolint:errcheck
	emailTransport := buildEmailTransport(cfg.Notification, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	coop := notify.CooperativeInfo{Name: cfg.Cooperative.Name, ContactPhone: cfg.Cooperative.ContactPhone}
	smsAdapter := notify.NewSMSAdapter(smsTransport, coop)
	emailAdapter := notify.NewEmailAdapter(emailTransport, tokens, notify.EmailAdapterConfig{
		Cooperative:   coop,
		ActivationURL: cfg.Notification.ActivationURL,
		TokenTTL:      cfg.Auth.ActivationTokenTTL,
	})

	metrics := observability.NewMetrics()
	reporter := service.NewErrorReporter(importRepo, dispatcher, logger)
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Members:    memberRepo,
		Imports:    importRepo,
		SMS:        smsAdapter,
		Email:      emailAdapter,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	creator := service.NewAccountCreator(service.AccountCreatorDependencies{
		Members:          memberRepo,
		Imports:          importRepo,
		Notifications:    notifications,
		Reporter:         reporter,
		Dispatcher:       dispatcher,
		Logger:           logger,
		BcryptCost:       cfg.Auth.BcryptCost,
		PlaceholderEmail: cfg.Cooperative.PlaceholderEmail,
	})
	importService := service.NewImportService(service.ImportDependencies{
		Previews:     previewStore,
		Creator:      creator,
		Logger:       logger,
		MaxFileBytes: cfg.Import.MaxFileBytes,
		PreviewTTL:   cfg.Import.PreviewTTL,
	})
	retryService := service.NewRetryService(service.RetryDependencies{
		Members:       memberRepo,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Policy: service.RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			BaseDelay:       cfg.Retry.BaseDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			BulkMemberDelay: cfg.Retry.BulkMemberDelay,
		},
		BcryptCost: cfg.Auth.BcryptCost,
	})
	resendService := service.NewResendService(service.ResendDependencies{
		Members:       memberRepo,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Logger:        logger,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	recoveryService := service.NewRecoveryService(service.RecoveryDependencies{
		Members:       memberRepo,
		Imports:       importRepo,
		Notifications: notifications,
		Reporter:      reporter,
		Dispatcher:    dispatcher,
		Logger:        logger,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	queryService := service.NewQueryService(memberRepo, importRepo)
	activationService := service.NewActivationService(service.ActivationDependencies{
		Members:    memberRepo,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Logger:     logger,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	authService := service.NewAuthService(*cfg, adminRepo, tokens)

	if admin, created, err := authService.BootstrapAdmin(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPass); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	} else if created {
		logger.Info("bootstrap admin created", zap.String("admin_id", admin.ID), zap.String("email", admin.Email))
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs := scheduler.NewJobRunner(memberRepo, retryService, logger, cfg.Retry.MaxRetries, cfg.Scheduler.BatchSize)
		sched, err = scheduler.NewScheduler(cfg.Scheduler, jobs, logger)
		if err != nil {
			logger.Fatal("failed to init scheduler", zap.Error(err))
		}
		sched.Start()
	}

	checks := []handlers.ReadinessCheck{
		{Name: "postgres", Run: pg.Ping},
		{Name: "preview_store", Run: redis.Ping},
		{Name: "audit_queue", Run: dispatcher.Healthy},
	}
	if mq != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "sms_broker", Run: mq.Healthy})
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Import.MaxFileBytes) + 64*1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Auth:           handlers.NewAuthHandler(authService, activationService),
		Imports:        handlers.NewImportsHandler(importService, queryService, recoveryService),
		Members:        handlers.NewMembersHandler(queryService, resendService, retryService),
		Activity:       handlers.NewActivityHandler(activityRepo),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, adminRepo),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	if sched != nil {
		sched.Stop()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("audit queue not fully drained", zap.Error(err))
	}
	if kafkaMirror != nil {
		if err := kafkaMirror.Close(); err != nil {
			logger.Warn("kafka writer close", zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
