package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sync/internal/api/http"
	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/secrets"
	"github.com/spec-kit/ticket-sync/internal/service"
	"github.com/spec-kit/ticket-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	box, err := secrets.NewBox(cfg.Sync.CredentialKey)
	if err != nil {
		logger.Fatal("failed to init credential box", zap.Error(err))
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	integrationRepo := repository.NewIntegrationRepository(pool)
	syncLogRepo := repository.NewSyncLogRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	routingService := service.NewRoutingService(integrationRepo)
	syncService := service.NewSyncService(service.SyncDependencies{
		DB:              pool,
		TicketRepo:      ticketRepo,
		IntegrationRepo: integrationRepo,
		SyncLogRepo:     syncLogRepo,
		Routing:         routingService,
		CredentialBox:   box,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
	})
	integrationService := service.NewIntegrationService(service.IntegrationDependencies{
		IntegrationRepo: integrationRepo,
		SyncLogRepo:     syncLogRepo,
		CredentialBox:   box,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Defaults:        cfg.Sync,
		ProbeTimeout:    cfg.HealthProbe.ProbeTimeoutDuration(),
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Ops)
	notificationService.RegisterHandlers()

	healthWorker := worker.NewHealthWorker(cfg.HealthProbe, integrationRepo, integrationService, redis, logger)
	if err := healthWorker.Start(ctx); err != nil {
		logger.Fatal("failed to start health worker", zap.Error(err))
	}
	defer healthWorker.Stop()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(syncService, ticketRepo),
		Integrations:   handlers.NewIntegrationsHandler(integrationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
