package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/pkg/outbox"
)

// OutboxWriter persists events for the dispatcher.
type OutboxWriter interface {
	Insert(ctx context.Context, event *outbox.Event) error
}

// Publisher sends events straight to the broker.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Relay hands events to durable delivery. With an outbox it writes a
// pending row; otherwise it publishes directly with the event name as
// routing key.
type Relay struct {
	outbox    OutboxWriter
	publisher Publisher
	logger    *zap.Logger
}

func NewOutboxRelay(w OutboxWriter, logger *zap.Logger) *Relay {
	return &Relay{outbox: w, logger: logger}
}

func NewPublisherRelay(p Publisher, logger *zap.Logger) *Relay {
	return &Relay{publisher: p, logger: logger}
}

func (r *Relay) Name() string {
	return "relay"
}

func (r *Relay) Handle(ctx context.Context, e events.Event) error {
	if r.outbox != nil {
		row, err := outbox.NewEvent(e.Aggregate(), e.ProjectID, e.Name, e)
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}
		if err := r.outbox.Insert(ctx, row); err != nil {
			return err
		}
		r.logger.Debug("Event written to outbox",
			zap.String("event", e.Name),
			zap.Int64("outbox_id", row.ID),
		)
		return nil
	}
	if r.publisher != nil {
		return r.publisher.PublishWithContext(ctx, e.Name, e)
	}
	return fmt.Errorf("relay has no outbox or publisher")
}
