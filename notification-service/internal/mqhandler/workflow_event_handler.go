package mqhandler

import (
	"context"
	"errors"
	"time"

	"projectmonitor/notification-service/internal/service"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/mq"
	"projectmonitor/pkg/util"

	"go.uber.org/zap"
)

const handlerName = "notify"

type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, eventID string) bool
	Release(ctx context.Context, handler string, eventID string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey, messageID string, payload []byte, originalError, failedAt string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, r *service.Rendered) (int, error)
}

// WorkflowEventHandler turns workflow events into notifications.
type WorkflowEventHandler struct {
	deliverer    Deliverer
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	maxRetries   int64
	logger       *zap.Logger
}

func NewWorkflowEventHandler(
	deliverer Deliverer,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	maxRetries int,
	logger *zap.Logger,
) *WorkflowEventHandler {
	return &WorkflowEventHandler{
		deliverer:    deliverer,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		maxRetries:   int64(maxRetries),
		logger:       logger,
	}
}

// Handle returns an error only when the message should be redelivered.
func (h *WorkflowEventHandler) Handle(ctx context.Context, msg mq.Message) error {
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.ID),
	)

	rendered, err := service.Render(msg.RoutingKey, msg.Body)
	if err != nil {
		// 不可重试，直接进入 DLQ
		log.Error("Failed to render workflow event (non-retryable, sending to DLQ)", zap.Error(err))
		return h.deadLetter(ctx, log, msg, err)
	}

	eventID := rendered.EventID
	if eventID == "" {
		eventID = msg.ID
	}
	rendered.EventID = eventID
	log = log.With(zap.String("event_id", eventID))

	// Redis 去重：数据库唯一约束兜底
	if !h.deduper.AcquireOnce(ctx, handlerName, eventID) {
		return nil
	}

	sent, err := h.deliverer.Deliver(ctx, rendered)
	if err == nil {
		log.Info("Workflow event delivered",
			zap.String("kind", rendered.Kind),
			zap.Int("recipients", len(rendered.Recipients)),
			zap.Int("sent", sent),
		)
		h.resetRetries(ctx, log, eventID)
		return nil
	}

	// 检查重试次数
	retryKey := util.FormatRetryKey(handlerName, eventID)
	retryCount, cntErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cntErr != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cntErr))
		retryCount = 1
	}

	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Failed to deliver workflow event",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Int64("max_retries", h.maxRetries),
		zap.Error(err),
	)

	if !util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
		h.resetRetries(ctx, log, eventID)
		return h.deadLetter(ctx, log, msg, err)
	}

	// 释放去重标记，允许重新投递
	h.deduper.Release(ctx, handlerName, eventID)
	return err
}

func (h *WorkflowEventHandler) deadLetter(ctx context.Context, log *zap.Logger, msg mq.Message, cause error) error {
	failedAt := time.Now().UTC().Format(time.RFC3339)
	if err := h.dlq.PublishToDLQ(ctx, msg.RoutingKey, msg.ID, msg.Body, cause.Error(), failedAt); err != nil {
		log.Error("Failed to publish to DLQ", zap.Error(err))
		return errors.Join(cause, err)
	}
	log.Warn("Message sent to DLQ", zap.String("reason", cause.Error()))
	return nil
}

func (h *WorkflowEventHandler) resetRetries(ctx context.Context, log *zap.Logger, eventID string) {
	if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, eventID)); err != nil {
		log.Debug("Failed to reset retry count", zap.Error(err))
	}
}
