package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HeaderCarrier adapts AMQP message headers (amqp091.Table) to the
// propagation.TextMapCarrier interface.
type HeaderCarrier map[string]any

func (c HeaderCarrier) Get(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectHeaders writes the span context of ctx into headers, which must be non-nil.
func InjectHeaders(ctx context.Context, headers map[string]any) {
	Propagator().Inject(ctx, HeaderCarrier(headers))
}

// ExtractHeaders returns ctx carrying the remote span context found in headers.
func ExtractHeaders(ctx context.Context, headers map[string]any) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return Propagator().Extract(ctx, HeaderCarrier(headers))
}

func messagingAttrs(operation, destination, routingKey, messageID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.destination.name", destination),
		attribute.String("messaging.rabbitmq.destination.routing_key", routingKey),
	}
	if messageID != "" {
		attrs = append(attrs, attribute.String("messaging.message.id", messageID))
	}
	return attrs
}

// PublishSpan starts a producer span for a domain event sent to exchange.
func PublishSpan(ctx context.Context, exchange, routingKey, messageID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, routingKey+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(messagingAttrs("publish", exchange, routingKey, messageID)...),
	)
}

// ConsumeSpan starts a consumer span; extract the remote context with
// ExtractHeaders first so the span joins the publisher's trace.
func ConsumeSpan(ctx context.Context, queue, routingKey, messageID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(messagingAttrs("process", queue, routingKey, messageID)...),
	)
}
