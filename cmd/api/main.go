package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/outlet-feedback/internal/api/http"
	"github.com/spec-kit/outlet-feedback/internal/api/http/handlers"
	"github.com/spec-kit/outlet-feedback/internal/auth"
	"github.com/spec-kit/outlet-feedback/internal/config"
	"github.com/spec-kit/outlet-feedback/internal/events"
	"github.com/spec-kit/outlet-feedback/internal/observability"
	"github.com/spec-kit/outlet-feedback/internal/persistence"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	"github.com/spec-kit/outlet-feedback/internal/service"
	"github.com/spec-kit/outlet-feedback/internal/worker"
)

type repositories struct {
	feedback    repository.FeedbackRepository
	history     repository.ReviewHistoryRepository
	outlets     repository.OutletRepository
	assignments repository.AssignmentRepository
	officers    repository.OfficerRepository
}

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
	logger = logger.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))

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

	repos := buildRepositories(pg)

	var redis *persistence.Redis
	if cfg.Hierarchy.CacheEnabled {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := events.NewInMemoryDispatcher()
	_, stopNotifications, err := worker.StartNotificationWorker(dispatcher, cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to start notification worker", zap.Error(err))
	}
	defer stopNotifications(context.Background()) //nolint:errcheck

	directory := service.NewHierarchyDirectory(repos.assignments, repos.officers)
	scopes := directory
	if redis != nil {
		scopes = service.NewCachedDirectory(directory, redis.Client, cfg.Hierarchy.CacheTTL, logger)
	}
	access := service.NewAccessFilter(directory, scopes)

	feedbackService := service.NewFeedbackService(service.FeedbackDependencies{
		FeedbackRepo:   repos.feedback,
		HistoryRepo:    repos.history,
		OutletRepo:     repos.outlets,
		AssignmentRepo: repos.assignments,
		OfficerRepo:    repos.officers,
		Access:         access,
		Scopes:         scopes,
		Logger:         logger,
	})
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		FeedbackRepo: repos.feedback,
		Access:       access,
		Directory:    directory,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Feedback:       handlers.NewFeedbackHandler(feedbackService, workflowService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func buildRepositories(pg *persistence.Postgres) repositories {
	if !pg.Enabled() {
		store := repository.NewMemoryStore()
		return repositories{
			feedback:    store,
			history:     store,
			outlets:     store.Outlets(),
			assignments: store,
			officers:    store,
		}
	}
	pool := pg.PoolHandle()
	return repositories{
		feedback:    repository.NewFeedbackRepository(pool),
		history:     repository.NewReviewHistoryRepository(pool),
		outlets:     repository.NewOutletRepository(pool),
		assignments: repository.NewAssignmentRepository(pool),
		officers:    repository.NewOfficerRepository(pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
