package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqcontracts "projectmonitor/contracts/mq"
	"projectmonitor/notification-service/internal/config"
	"projectmonitor/notification-service/internal/handler"
	"projectmonitor/notification-service/internal/httpserver"
	"projectmonitor/notification-service/internal/mqhandler"
	"projectmonitor/notification-service/internal/repository"
	"projectmonitor/notification-service/internal/service"
	"projectmonitor/pkg/db"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/mq"
	"projectmonitor/pkg/otel"
	"projectmonitor/pkg/redis"
	"projectmonitor/pkg/util"

	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting notification-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("queue", cfg.Notification.Queue),
		zap.String("channel", cfg.Notification.Channel),
	)

	shutdownTracer, err := otel.Init(otel.NewConfig("notification-service", version, cfg.Otel), log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTracer()
	}

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redis.Ping(context.Background(), rdb); err != nil {
		// 去重降级为仅依赖数据库唯一约束
		log.Warn("Redis unavailable, dedupe falls back to the database", zap.Error(err))
	}

	// MQ Publisher (DLQ)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()
	if err := publisher.DeclareDLQQueues(mqcontracts.WorkflowRoutingKeys...); err != nil {
		log.Fatal("Failed to declare DLQ queues", zap.Error(err))
	}

	sender, err := service.NewSender(cfg.Notification.Channel, log)
	if err != nil {
		log.Fatal("Invalid notification channel", zap.Error(err))
	}

	notificationRepo := repository.NewNotificationRepository(dbConn, log, cfg.DB.QueryTimeout)
	notificationSvc := service.NewNotificationService(notificationRepo, sender, cfg.Notification.Channel, cfg.Notification.ListLimit, log)
	eventHandler := mqhandler.NewWorkflowEventHandler(
		notificationSvc,
		util.NewDeduper(rdb, cfg.Notification.DedupeTTL, log),
		util.NewRetryCounter(rdb, cfg.Notification.DedupeTTL),
		publisher,
		cfg.Notification.MaxRetries,
		log,
	)

	// MQ Consumer
	log.Info("Initializing MQ consumer...",
		zap.String("queue", cfg.Notification.Queue),
		zap.Strings("routing_keys", mqcontracts.WorkflowRoutingKeys),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Notification.Queue, log, mqcontracts.WorkflowRoutingKeys...)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(eventHandler.Handle)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		log.Info("Starting workflow event consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Workflow event consumer failed", zap.Error(err))
		}
	}()

	// HTTP Server
	router := httpserver.NewRouter(handler.NewNotificationHandler(notificationSvc, log), notificationRepo, consumer, log)
	srv := &http.Server{
		Addr:              cfg.Notification.Server.Port,
		Handler:           router.Engine,
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

	consumer.Stop()
	select {
	case <-consumerDone:
	case <-time.After(cfg.Notification.Server.ShutdownTimeout):
		log.Warn("Timed out waiting for in-flight messages")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Notification.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("notification-service shutdown complete")
}
