package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"nexus/pkg/trace"
)

type fakeStore struct {
	events map[int64]*Event
	failed map[int64]int
	sent   []int64
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: map[int64]*Event{}, failed: map[int64]int{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.events[id].Status = StatusSent
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	e := s.events[id]
	e.RetryCount++
	e.Status, e.NextRetryAt = NextAttempt(e.RetryCount, maxRetries, time.Now())
	s.failed[id]++
	return nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)); id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	key     string
	traceID string
}

type fakePublisher struct {
	err  error
	msgs []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, key string, _ any) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, traceID: trace.FromContext(ctx)})
	return nil
}

func pending(id int64, key, payload string) *Event {
	return &Event{ID: id, RoutingKey: key, Payload: json.RawMessage(payload), Status: StatusPending}
}

func TestProcessPendingPublishesAndMarksSent(t *testing.T) {
	store := newFakeStore(
		pending(1, "task.created", `{"id":"e1","traceId":"trace-1"}`),
		pending(2, "project.updated", `{"id":"e2"}`),
	)
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	if n := d.ProcessPending(context.Background()); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	if pub.msgs[0].key != "task.created" || pub.msgs[0].traceID != "trace-1" {
		t.Errorf("first message = %+v", pub.msgs[0])
	}
	if store.events[1].Status != StatusSent || store.events[2].Status != StatusSent {
		t.Error("events not marked as sent")
	}
}

func TestProcessPendingMarksFailuresUntilExhausted(t *testing.T) {
	store := newFakeStore(pending(1, "task.created", `{"id":"e1"}`))
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)

	d.ProcessPending(context.Background())
	if e := store.events[1]; e.Status != StatusPending || e.NextRetryAt == nil {
		t.Fatalf("after first failure: status=%s next=%v", e.Status, e.NextRetryAt)
	}
	d.ProcessPending(context.Background())
	if e := store.events[1]; e.Status != StatusFailed {
		t.Fatalf("after second failure: status=%s", e.Status)
	}
}

func TestProcessPendingRejectsInvalidPayload(t *testing.T) {
	store := newFakeStore(pending(1, "task.created", `{broken`))
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	if n := d.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
	if len(pub.msgs) != 0 {
		t.Error("invalid payload was published")
	}
	if store.failed[1] != 1 {
		t.Errorf("failed count = %d, want 1", store.failed[1])
	}
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	status, next := NextAttempt(2, 5, now)
	if status != StatusPending || next == nil || !next.Equal(now.Add(10*time.Second)) {
		t.Errorf("NextAttempt(2,5) = %s %v", status, next)
	}
	status, next = NextAttempt(5, 5, now)
	if status != StatusFailed || next != nil {
		t.Errorf("NextAttempt(5,5) = %s %v", status, next)
	}
}

func TestReplayFailedEvents(t *testing.T) {
	a := pending(1, "task.created", `{"id":"e1"}`)
	a.Status = StatusFailed
	b := pending(2, "task.updated", `{"id":"e2"}`)
	b.Status = StatusFailed
	store := newFakeStore(a, b, pending(3, "task.deleted", `{"id":"e3"}`))
	pub := &fakePublisher{}

	n, err := NewReplayService(store, pub, zap.NewNop()).ReplayFailedEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReplayFailedEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("replayed = %d, want 2", n)
	}
	if store.events[3].Status != StatusPending {
		t.Error("pending event should not be replayed")
	}
}

func TestReplayEventNotFound(t *testing.T) {
	svc := NewReplayService(newFakeStore(), &fakePublisher{}, zap.NewNop())
	if err := svc.ReplayEvent(context.Background(), 42); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("err = %v, want ErrEventNotFound", err)
	}
}
