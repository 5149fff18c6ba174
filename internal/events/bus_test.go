package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestPublishIsolatesFailingListeners(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []string
	record := func(name string) Listener {
		return ListenerFunc(name, func(_ context.Context, e Event) error {
			got = append(got, name+":"+e.Name)
			return nil
		})
	}

	bus.Subscribe(TaskCreated, record("first"))
	bus.Subscribe(TaskCreated, ListenerFunc("panics", func(context.Context, Event) error {
		panic("boom")
	}))
	bus.SubscribeAll(ListenerFunc("errors", func(context.Context, Event) error {
		return errors.New("slack down")
	}))
	bus.SubscribeAll(record("all"))
	bus.Subscribe(MilestoneCreated, record("milestones"))

	failed := bus.Publish(context.Background(), Event{Name: TaskCreated, ProjectID: "p1"})

	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	want := []string{"first:task.created", "all:task.created"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishFillsEnvelope(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var seen Event
	bus.SubscribeAll(ListenerFunc("capture", func(_ context.Context, e Event) error {
		seen = e
		return nil
	}))
	bus.Publish(context.Background(), Event{Name: ProjectCreated})

	if seen.ID == "" {
		t.Error("expected event id to be set")
	}
	if seen.OccurredAt.IsZero() {
		t.Error("expected occurredAt to be set")
	}
	if seen.Level != LevelInfo {
		t.Errorf("level = %q, want %q", seen.Level, LevelInfo)
	}
	if seen.Aggregate() != "project" {
		t.Errorf("aggregate = %q, want project", seen.Aggregate())
	}
}
