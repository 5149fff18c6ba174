package mq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"nexus/pkg/metrics"
	"nexus/pkg/otel"
	"nexus/pkg/trace"
)

// Message is a single delivery handed to a MessageHandler.
type Message struct {
	ID         string
	RoutingKey string
	Body       json.RawMessage
}

type MessageHandler func(ctx context.Context, msg Message) error

// RetryTracker counts deliveries of the same message across requeues.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger

	retries    RetryTracker
	maxRetries int64

	stopOnce sync.Once
}

// NewConsumer declares queueName, binds it to every routing key pattern and
// prepares the matching dead letter queue.
func NewConsumer(url, queueName string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare dlq exchange: %w", err))
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
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			return fail(fmt.Errorf("failed to bind queue to %s: %w", key, err))
		}
	}

	if _, err := DeclareDLQQueue(ch, queueName, routingKeys); err != nil {
		return fail(err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return fail(fmt.Errorf("failed to set qos: %w", err))
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
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetry dead-letters a message once it failed more than maxRetries times.
// Without a tracker failed messages are requeued indefinitely.
func (c *Consumer) WithRetry(tracker RetryTracker, maxRetries int64) *Consumer {
	c.retries = tracker
	c.maxRetries = maxRetries
	return c
}

// IsConnected reports whether the underlying AMQP connection is open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop closes the channel and connection, which ends StartConsuming.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		if c.channel != nil {
			_ = c.channel.Close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Consumer) Close() {
	c.Stop()
}

// StartConsuming blocks until the delivery channel is closed.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"nexus-worker",
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

	for msg := range deliveries {
		c.handle(msg)
	}

	c.logger.Info("Consumer delivery channel closed", zap.String("queue", c.queue.Name))
	return nil
}

// handle guarantees every delivery is acked or nacked, even when the handler panics.
func (c *Consumer) handle(msg amqp091.Delivery) {
	start := time.Now()

	ctx := otel.ExtractHeaders(context.Background(), msg.Headers)
	traceID, _ := msg.Headers[TraceIDHeader].(string)
	ctx, _ = trace.Ensure(ctx, traceID)
	ctx, span := otel.ConsumeSpan(ctx, c.queue.Name, msg.RoutingKey, msg.MessageId)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("trace_id", trace.FromContext(ctx)),
	)
	log.Debug("Received message", zap.Int("message_size", len(msg.Body)))

	defer func() {
		metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			c.fail(ctx, msg, fmt.Sprintf("panic: %v", r), log)
		}
	}()

	m := Message{ID: messageKey(msg), RoutingKey: msg.RoutingKey, Body: msg.Body}
	if err := c.handler(ctx, m); err != nil {
		log.Error("Handler error", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.fail(ctx, msg, err.Error(), log)
		return
	}

	if c.retries != nil {
		_ = c.retries.Reset(ctx, c.retryKey(msg))
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
		return
	}
	log.Debug("Message processed successfully")
}

// fail requeues the delivery, or dead-letters it when the retry budget is spent.
func (c *Consumer) fail(ctx context.Context, msg amqp091.Delivery, reason string, log *zap.Logger) {
	if c.retries != nil {
		count, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
		if err != nil {
			log.Warn("Retry counter unavailable, requeueing", zap.Error(err))
		} else if count > c.maxRetries {
			if err := publishToDLQ(ctx, c.channel, c.queue.Name, msg, reason); err != nil {
				log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
			} else {
				log.Warn("Message moved to DLQ", zap.Int64("attempts", count))
				_ = c.retries.Reset(ctx, c.retryKey(msg))
				if err := msg.Ack(false); err != nil {
					log.Error("Failed to ack dead-lettered message", zap.Error(err))
				}
				return
			}
		}
	}

	if err := msg.Nack(false, true); err != nil {
		log.Error("Failed to nack message", zap.Error(err))
	}
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	return fmt.Sprintf("retry:%s:%s", c.queue.Name, messageKey(msg))
}

func messageKey(msg amqp091.Delivery) string {
	if msg.MessageId != "" {
		return msg.MessageId
	}
	sum := sha256.Sum256(msg.Body)
	return hex.EncodeToString(sum[:8])
}
