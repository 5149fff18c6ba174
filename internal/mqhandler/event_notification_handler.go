package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/pkg/logger"
	"nexus/pkg/mq"
	"nexus/pkg/trace"
	"nexus/pkg/util"
)

// Sender delivers one event to an external channel.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, e events.Event) error
}

const dedupeScope = "slack-event"

type EventNotificationHandler struct {
	sender  Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewEventNotificationHandler(sender Sender, deduper *util.Deduper, logger *zap.Logger) *EventNotificationHandler {
	return &EventNotificationHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

// Handle -- 把领域事件投递到 Slack。返回错误时消息会被重新入队。
func (h *EventNotificationHandler) Handle(ctx context.Context, msg mq.Message) error {
	var e events.Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		h.logger.Error("Failed to unmarshal event",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return fmt.Errorf("decode event: %w", err)
	}
	if e.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, e.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("event", e.Name),
		zap.String("event_id", e.ID),
		zap.String("project_id", e.ProjectID),
	)

	if !h.sender.Enabled() {
		log.Debug("Slack disabled, dropping event")
		return nil
	}

	// redeliveries after a successful send must not post twice
	if !h.deduper.AcquireOnce(ctx, dedupeScope, e.ID) {
		return nil
	}
	if err := h.sender.Send(ctx, e); err != nil {
		h.deduper.Release(ctx, dedupeScope, e.ID)
		log.Warn("Slack delivery failed", zap.Error(err))
		return err
	}

	log.Info("Event delivered to Slack")
	return nil
}
