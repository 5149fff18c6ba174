package notify

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/pkg/outbox"
)

type fakeOutbox struct {
	rows []*outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, e *outbox.Event) error {
	e.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, e)
	return nil
}

type fakePublisher struct {
	keys []string
}

func (f *fakePublisher) PublishWithContext(_ context.Context, key string, _ any) error {
	f.keys = append(f.keys, key)
	return nil
}

func TestRelayWritesOutboxRow(t *testing.T) {
	w := &fakeOutbox{}
	r := NewOutboxRelay(w, zap.NewNop())

	e := events.Event{ID: "e1", Name: events.MilestoneDeleted, ProjectID: "p1", Title: "Milestone deleted"}
	if err := r.Handle(context.Background(), e); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(w.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(w.rows))
	}
	row := w.rows[0]
	if row.RoutingKey != events.MilestoneDeleted || row.AggregateType != "milestone" || row.Status != outbox.StatusPending {
		t.Errorf("unexpected row %+v", row)
	}
	if row.AggregateID == nil || *row.AggregateID != "p1" {
		t.Errorf("aggregate id = %v, want p1", row.AggregateID)
	}
	var decoded events.Event
	if err := json.Unmarshal(row.Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.ID != "e1" {
		t.Errorf("payload id = %q", decoded.ID)
	}
}

func TestRelayPublishesWithoutOutbox(t *testing.T) {
	p := &fakePublisher{}
	r := NewPublisherRelay(p, zap.NewNop())

	if err := r.Handle(context.Background(), events.Event{Name: events.GitHubPush}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(p.keys) != 1 || p.keys[0] != events.GitHubPush {
		t.Errorf("keys = %v", p.keys)
	}
}
