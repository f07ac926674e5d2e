package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notification-dispatcher/internal/config"
	"github.com/kursadbilgin/notification-dispatcher/internal/contact"
	"github.com/kursadbilgin/notification-dispatcher/internal/customer"
	"github.com/kursadbilgin/notification-dispatcher/internal/handler"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-dispatcher/internal/infra/redis"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/policy"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/render"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
	"github.com/kursadbilgin/notification-dispatcher/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolConfig())
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, cfg.ServiceName)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	deliveryProvider, err := newProvider(cfg)
	if err != nil {
		logger.Fatal("email provider initialization failed", zap.Error(err))
	}

	sealer, err := contact.NewSealer(cfg.ContactSealKey)
	if err != nil {
		logger.Fatal("contact sealer initialization failed", zap.Error(err))
	}
	if !sealer.Enabled() {
		logger.Warn("CONTACT_SEAL_KEY is not set, failed notifications can only be resent via the customer directory")
	}

	var directory customer.Directory
	if cfg.CustomerServiceURL != "" {
		client, err := customer.NewClient(cfg.CustomerServiceURL)
		if err != nil {
			logger.Fatal("customer client initialization failed", zap.Error(err))
		}
		directory = client
	}

	throttle, err := infraredis.NewSendThrottle(rdb, cfg.RateLimitPerSec, 0)
	if err != nil {
		logger.Fatal("send throttle initialization failed", zap.Error(err))
	}
	deduper, err := infraredis.NewMessageDeduper(rdb, cfg.DedupTTL())
	if err != nil {
		logger.Fatal("message deduper initialization failed", zap.Error(err))
	}
	tracker, err := infraredis.NewAccountStatusTracker(rdb)
	if err != nil {
		logger.Fatal("account status tracker initialization failed", zap.Error(err))
	}

	gate, err := policy.NewGate(cfg.Threshold())
	if err != nil {
		logger.Fatal("gating policy initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	publisher := queue.NewRabbitMQPublisher(rabbit)
	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	retryPolicy := retry.Policy{
		MaxAttempts:    cfg.DeliveryMaxAttempts,
		InitialBackoff: cfg.DeliveryBackoff(),
		Multiplier:     cfg.DeliveryBackoffMultiplier,
	}

	dispatcher, err := service.NewDispatcher(
		notifications,
		attempts,
		deliveryProvider,
		gate,
		render.NewRenderer(cfg.CurrencySymbol),
		retryPolicy,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetPublisher(publisher)
	dispatcher.SetRateLimiter(throttle)
	dispatcher.SetSealer(sealer)
	dispatcher.SetCustomerDirectory(directory)
	dispatcher.SetStatusTracker(tracker)
	dispatcher.SetDeliveryTimeout(cfg.DeliveryTimeout())

	resweeper, err := service.NewResweeper(notifications, attempts, deliveryProvider, logger)
	if err != nil {
		logger.Fatal("resweeper initialization failed", zap.Error(err))
	}
	resweeper.SetMetrics(metrics)
	resweeper.SetPublisher(publisher)
	resweeper.SetRateLimiter(throttle)
	resweeper.SetSealer(sealer)
	resweeper.SetCustomerDirectory(directory)

	reclaimer, err := service.NewPendingReclaimer(notifications, cfg.PendingReclaimAfter(), cfg.PendingReclaimInterval(), logger)
	if err != nil {
		logger.Fatal("pending reclaimer initialization failed", zap.Error(err))
	}
	reclaimer.SetMetrics(metrics)

	query, err := service.NewQueryService(notifications, attempts)
	if err != nil {
		logger.Fatal("query service initialization failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.ConsumerPrefetch, logger)
	consumer.SetDeduper(deduper)

	consumers, err := service.NewEventConsumers(dispatcher, consumer, cfg.ConsumerConcurrency, logger)
	if err != nil {
		logger.Fatal("event consumers initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.ServiceName,
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, map[string]handler.ReadinessCheck{
		"postgres": handler.PostgresCheck(sqlDB),
		"redis":    handler.RedisCheck(rdb),
		"rabbitmq": handler.BrokerCheck(rabbit.Healthy),
	})
	handler.RegisterMetricsRoute(app, metrics.Handler())
	if err := handler.RegisterNotificationRoutes(app, dispatcher, query, resweeper); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumers.Start(groupCtx)
	})
	g.Go(func() error {
		return resweeper.Start(groupCtx, cfg.ResweepInterval())
	})
	g.Go(func() error {
		return reclaimer.Start(groupCtx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("notification-dispatcher api started", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notification-dispatcher stopped with error", zap.Error(err))
		return
	}
	logger.Info("notification-dispatcher stopped")
}

func newProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.EmailProvider {
	case config.EmailProviderWebhook:
		return provider.NewWebhookProvider(cfg.MailRelayURL, cfg.SMTPFrom)
	default:
		return provider.NewSMTPProvider(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
}
