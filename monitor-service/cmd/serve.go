package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"projectmonitor/monitor-service/internal/handler"
	"projectmonitor/monitor-service/internal/httpserver"
	"projectmonitor/monitor-service/internal/service/comments"
	"projectmonitor/monitor-service/internal/service/progress"
	"projectmonitor/monitor-service/internal/service/registry"
	"projectmonitor/monitor-service/internal/service/workflow"
	"projectmonitor/pkg/blobstore"
	"projectmonitor/pkg/circuitbreaker"
	"projectmonitor/pkg/mq"
	"projectmonitor/pkg/otel"
	"projectmonitor/pkg/outbox"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var runMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a, runMigrations)
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func serve(a *app, runMigrations bool) error {
	cfg, log := a.cfg, a.log
	log.Info("Starting monitor-service...",
		zap.String("port", cfg.Monitor.Server.Port),
		zap.Bool("allow_approve_queried", cfg.Monitor.Workflow.AllowApproveQueried),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.Init(otel.NewConfig("monitor-service", version, cfg.Otel), log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTracer()
	}

	if runMigrations {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	// Evidence storage
	local, err := blobstore.NewLocalStore(cfg.Monitor.Blob.Root, cfg.Monitor.Blob.BaseURL, cfg.Monitor.Blob.Secret)
	if err != nil {
		return err
	}
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Monitor.Blob.FailureThreshold
	breakerCfg.Timeout = cfg.Monitor.Blob.OpenTimeout
	breaker := circuitbreaker.NewCircuitBreaker(breakerCfg)
	blobs := blobstore.NewGuarded(local, breaker, cfg.Monitor.Blob.Timeout)

	registrySvc := registry.NewService(a.store, log)
	workflowSvc := workflow.NewService(a.store, blobs, cfg.Monitor.Workflow, log)
	progressSvc := progress.NewService(a.store, log)
	commentSvc := comments.NewService(a.store, log)

	handlers := httpserver.Handlers{
		Projects:    handler.NewProjectHandler(registrySvc, log),
		Submissions: handler.NewSubmissionHandler(workflowSvc, cfg.Monitor.Blob.MaxRequestBytes, log),
		Progress:    handler.NewProgressHandler(progressSvc, log),
		Comments:    handler.NewCommentHandler(commentSvc, log),
		Blobs:       handler.NewBlobHandler(local, log),
	}

	// MQ: without a broker the outbox keeps filling and is drained later
	var connected httpserver.Connected
	if cfg.MQ.URL != "" {
		log.Info("Initializing MQ publisher...")
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		connected = publisher

		dispatcher := outbox.NewDispatcher(a.store.Events(), publisher, log).
			WithInterval(cfg.Monitor.Outbox.Interval).
			WithBatchSize(cfg.Monitor.Outbox.BatchSize).
			WithMaxRetries(cfg.Monitor.Outbox.MaxRetries)
		go dispatcher.Start(ctx)
		log.Info("Outbox dispatcher started")

		handlers.Admin = handler.NewAdminHandler(outbox.NewReplayService(a.store.Events(), publisher, log), log)
	} else {
		log.Warn("mq.url is empty, outbox dispatcher disabled")
	}

	router := httpserver.NewRouter(handlers, cfg.JWT.Secret, a.store.Actors(), a.store, connected, log)
	server := &http.Server{
		Addr:              cfg.Monitor.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-errCh:
		log.Error("HTTP server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited")
	return nil
}
