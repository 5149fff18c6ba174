package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/pkg/metrics"
	"nexus/pkg/trace"
)

// Listener reacts to published events.
type Listener interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

type listenerFunc struct {
	name string
	fn   func(ctx context.Context, e Event) error
}

func (l listenerFunc) Name() string                              { return l.name }
func (l listenerFunc) Handle(ctx context.Context, e Event) error { return l.fn(ctx, e) }

// ListenerFunc adapts a function to Listener.
func ListenerFunc(name string, fn func(ctx context.Context, e Event) error) Listener {
	return listenerFunc{name: name, fn: fn}
}

type subscription struct {
	event    string // empty matches every event
	listener Listener
}

// Bus is a synchronous in-process dispatcher. Listeners run in subscription
// order; an error or panic in one is logged and counted and the rest still run.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
	now    func() time.Time
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		now:    time.Now,
	}
}

func (b *Bus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{event: name, listener: l})
}

func (b *Bus) SubscribeAll(l Listener) {
	b.Subscribe("", l)
}

// Publish delivers e to every matching listener and returns the number of
// listeners that failed.
func (b *Bus) Publish(ctx context.Context, e Event) int {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if e.TraceID == "" {
		e.TraceID = trace.FromContext(ctx)
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	metrics.IncrementEventPublished(e.Name)

	failed := 0
	for _, s := range subs {
		if s.event != "" && s.event != e.Name {
			continue
		}
		if err := b.deliver(ctx, s.listener, e); err != nil {
			failed++
			metrics.IncrementListenerFailure(s.listener.Name(), e.Name)
			b.logger.Error("Event listener failed",
				zap.String("listener", s.listener.Name()),
				zap.String("event", e.Name),
				zap.String("event_id", e.ID),
				zap.String("project_id", e.ProjectID),
				zap.Error(err),
			)
		}
	}
	return failed
}

func (b *Bus) deliver(ctx context.Context, l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.Handle(ctx, e)
}
