package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/fieldops/internal/archive"
	"github.com/kursadbilgin/fieldops/internal/config"
	"github.com/kursadbilgin/fieldops/internal/handler"
	"github.com/kursadbilgin/fieldops/internal/infra/postgresql"
	"github.com/kursadbilgin/fieldops/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/fieldops/internal/infra/redis"
	"github.com/kursadbilgin/fieldops/internal/normalizer"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/ordersearch"
	"github.com/kursadbilgin/fieldops/internal/pipeline"
	"github.com/kursadbilgin/fieldops/internal/queue"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"github.com/kursadbilgin/fieldops/internal/service"
	"github.com/kursadbilgin/fieldops/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	consumerPrefetch = 10
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("fieldops api stopped with error", zap.Error(err))
	}
	logger.Info("fieldops api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return err
	}
	queryCache, err := infraredis.NewQueryCache(rdb, cfg.CacheTTL)
	if err != nil {
		return err
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()
	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, logger)

	searchClient, err := ordersearch.NewClient(cfg.OrderSearchURL, cfg.OrderSearchAPIKey, cfg.OrderSearchTimeout)
	if err != nil {
		return err
	}
	searchClient.SetRateLimiter(rateLimiter)

	controller := pipeline.NewRetryController(cfg.FetchMaxRetries, cfg.FetchRetryDelay, cfg.FetchFailFast)

	driver, err := pipeline.NewDriver(searchClient, controller, logger, metrics)
	if err != nil {
		return err
	}

	orderRepo := repository.NewGormWorkOrderRepo(db)
	runRepo := repository.NewGormImportRunRepo(db)

	importService, err := service.NewImportService(orderRepo, runRepo, publisher, metrics, logger)
	if err != nil {
		return err
	}
	workOrderService, err := service.NewWorkOrderService(orderRepo, queryCache, metrics, logger)
	if err != nil {
		return err
	}

	manager, err := pipeline.NewManager(driver, normalizer.New(logger), importService, logger, metrics, cfg.FetchBatchDelay)
	if err != nil {
		return err
	}
	defer manager.Close()

	if cfg.ArchiveEnabled() {
		s3Client, err := archive.NewS3Client(ctx, archive.Config{
			Bucket:          cfg.ArchiveBucket,
			Prefix:          cfg.ArchivePrefix,
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("archive client initialization failed: %w", err)
		}
		archiver, err := archive.NewS3Archiver(s3Client, cfg.ArchiveBucket, cfg.ArchivePrefix, logger)
		if err != nil {
			return err
		}
		manager.SetArchiver(archiver)
	}

	invalidator, err := service.NewCacheInvalidator(consumer, workOrderService, logger)
	if err != nil {
		return err
	}

	var scheduler *service.Scheduler
	if cfg.ImportSchedule != "" {
		scheduler, err = service.NewScheduler(manager, cfg.ImportSchedule, cfg.FetchValidStatuses, cfg.FetchBatchSize, logger)
		if err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(transport.CorrelationID())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app,
		handler.PingSQL("postgres", sqlDB),
		handler.PingRedis("redis", rdb),
	)
	if err := handler.RegisterImportRoutes(app, manager, importService); err != nil {
		return err
	}
	if err := handler.RegisterWorkOrderRoutes(app, workOrderService); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("fieldops api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	g.Go(func() error {
		return invalidator.Start(groupCtx)
	})

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	}

	return g.Wait()
}
