package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"planify-notification/internal/config"
	"planify-notification/internal/directory"
	"planify-notification/internal/httpserver"
	"planify-notification/internal/mqhandler"
	"planify-notification/internal/push"
	"planify-notification/internal/repository"
	"planify-notification/internal/scheduler"
	"planify-notification/internal/sender"
	"planify-notification/internal/service"
	"planify-notification/migrations"
	"planify-notification/pkg/db"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/mq"
	"planify-notification/pkg/otel"
	"planify-notification/pkg/outbox"
	redisclient "planify-notification/pkg/redis"
	"planify-notification/pkg/resilience"
	"planify-notification/pkg/util"
)

// eventSource is a RabbitMQ or Kafka consumer.
type eventSource interface {
	Start(ctx context.Context) error
	Close()
}

// eventPublisher is a RabbitMQ or Kafka publisher used by the outbox.
type eventPublisher interface {
	outbox.Publisher
	Close()
}

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Logger)
	defer log.Sync()

	log.Info("Starting notification-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_driver", cfg.MQ.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, dbConn, migrations.FS, ".", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis (optional)
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Outbox
	var outboxRepo *outbox.Repository
	var publisher eventPublisher
	if cfg.Outbox.Enabled {
		outboxRepo = outbox.NewRepository(dbConn)
		publisher, err = newPublisher(cfg)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()

		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
		if cfg.Outbox.MaxRetries > 0 {
			dispatcher.WithMaxRetries(cfg.Outbox.MaxRetries)
		}
		if cfg.Outbox.IntervalMs > 0 {
			dispatcher.WithInterval(time.Duration(cfg.Outbox.IntervalMs) * time.Millisecond)
		}
		if cfg.Outbox.BatchSize > 0 {
			dispatcher.WithBatchSize(cfg.Outbox.BatchSize)
		}
		if cfg.Outbox.RetentionHours > 0 {
			dispatcher.WithRetention(time.Duration(cfg.Outbox.RetentionHours) * time.Hour)
		}
		go dispatcher.Start(ctx)
	}

	// Repositories
	templateRepo := repository.NewTemplateRepository(dbConn)
	logRepo := repository.NewNotificationLogRepository(dbConn, outboxRepo, cfg.Topics.Dispatched, log)
	attendeeRepo := repository.NewAttendeeRepository(dbConn)
	inAppRepo := repository.NewInAppRepository(dbConn)

	// Senders and directory behind resilience policies
	emailSender, smsSender := sender.Resilient(
		sender.NewLogEmailSender(log), sender.NewLogSMSSender(log),
		cfg.Senders.Email.Resilience, cfg.Senders.SMS.Resilience,
		log,
	)

	directoryPolicy := resilience.NewPolicy("user-directory", cfg.Directory.Resilience,
		resilience.WithPermanentErrors(directory.IsPermanent),
		resilience.WithLogger(log),
	)
	users := directory.NewResilientClient(
		directory.NewHTTPClient(cfg.Directory.BaseURL, cfg.Directory.Timeout()),
		directoryPolicy,
		log,
	)

	// Services
	registry := push.NewRegistry(log)
	defer registry.CloseAll()

	engine := service.NewDispatchEngine(templateRepo, logRepo, inAppRepo, registry, emailSender, smsSender, log)
	eventRouter := service.NewEventRouter(templateRepo, engine, attendeeRepo, log)
	reminders := service.NewReminderService(attendeeRepo, users, smsSender, logRepo, engine, log).
		WithFallbackMarksSent(cfg.Reminder.FallbackMarksSent)

	// Event source
	var guard mqhandler.Guard
	if cfg.Dedup.Enabled && rdb != nil {
		guard = util.NewDeduper(rdb, cfg.Dedup.TTL(), log)
	}
	router := mq.NewRouter(log, mqhandler.Routes(cfg.Topics, eventRouter, guard, log)...)

	source, err := newEventSource(cfg, router, rdb, log)
	if err != nil {
		log.Fatal("Failed to init event consumer", zap.Error(err))
	}
	defer source.Close()

	go func() {
		if err := source.Start(ctx); err != nil {
			log.Error("Event consumer stopped", zap.Error(err))
		}
	}()

	// Reminder scheduler
	if cfg.Reminder.Enabled {
		ticker := scheduler.NewTicker(reminders, cfg.Reminder.Interval(), log).
			WithRunOnStartup(cfg.Reminder.RunOnStartup).
			WithSkipError(service.ErrRunInProgress)
		go ticker.Start(ctx)
	}

	// HTTP Server
	feed := service.NewFeedService(inAppRepo, registry, log)
	httpRouter := httpserver.NewRouter(dbConn, reminders, feed, registry, cfg.JWT.Secret, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpRouter.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification-service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification-service gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("notification-service shutdown complete")
}
