package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"projectmonitor/pkg/metrics"
	"projectmonitor/pkg/otel"
	"projectmonitor/pkg/trace"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message is what a handler sees of one delivery.
type Message struct {
	ID         string
	RoutingKey string
	Body       json.RawMessage
}

type MessageHandler func(ctx context.Context, msg Message) error

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger
	tag         string
}

// NewConsumer creates a durable queue bound to every given routing key.
func NewConsumer(url, queueName string, logger *zap.Logger, routingKeys ...string) (*Consumer, error) {
	if len(routingKeys) == 0 {
		return nil, fmt.Errorf("at least one routing key is required")
	}

	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, rk := range routingKeys {
		if err := ch.QueueBind(q.Name, rk, ExchangeName, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", rk, err)
		}
	}

	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKeys: routingKeys,
		logger:      logger,
		tag:         queueName + "-consumer",
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

// Stop cancels the subscription; StartConsuming returns once in-flight
// deliveries are drained.
func (c *Consumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Cancel(c.tag, false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until the delivery channel closes.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("queue", c.queue.Name),
	)

	// 保证每条消息都会被 ack 或 nack
	for msg := range deliveries {
		c.handle(msg)
	}

	c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
	return nil
}

func (c *Consumer) handle(msg amqp091.Delivery) {
	start := time.Now()
	carrier := otel.NewMQHeaderCarrier(msg.Headers)
	ctx := otel.Extract(context.Background(), carrier)
	if traceID := carrier.Get(trace.TraceIDKey); traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	} else {
		ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	fields := []zap.Field{
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	}

	c.logger.Debug("Received message", append(fields, zap.Int("message_size", len(msg.Body)))...)

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered", append(fields, zap.Any("panic", r))...)
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message after panic", append(fields, zap.Error(err))...)
			}
		}
	}()

	err := c.handler(ctx, Message{ID: msg.MessageId, RoutingKey: msg.RoutingKey, Body: msg.Body})
	metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	if err != nil {
		c.logger.Error("Handler error", append(fields, zap.Error(err))...)
		// 业务失败 → 重新入队
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message", append(fields, zap.Error(err))...)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("Message processed successfully", fields...)
}
