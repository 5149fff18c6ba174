// Package trace carries the request trace id used to correlate logs, events,
// outbox rows and AMQP messages.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the trace id in and out.
const Header = "X-Trace-ID"

// caller-supplied ids longer than this are replaced
const maxIDLength = 128

type ctxKey struct{}

func NewID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure stores candidate in ctx when it is usable, keeps an id already in
// ctx otherwise, and falls back to a fresh one.
func Ensure(ctx context.Context, candidate string) (context.Context, string) {
	candidate = strings.TrimSpace(candidate)
	if candidate != "" && len(candidate) <= maxIDLength {
		return WithContext(ctx, candidate), candidate
	}
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithContext(ctx, id), id
}
