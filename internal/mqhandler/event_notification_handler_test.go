package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/pkg/mq"
)

type fakeSender struct {
	enabled bool
	err     error
	sent    []events.Event
}

func (f *fakeSender) Enabled() bool { return f.enabled }
func (f *fakeSender) Send(_ context.Context, e events.Event) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

func message(t *testing.T, e events.Event) mq.Message {
	t.Helper()
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return mq.Message{ID: "m1", RoutingKey: e.Name, Body: body}
}

func TestHandleDeliversEvent(t *testing.T) {
	sender := &fakeSender{enabled: true}
	h := NewEventNotificationHandler(sender, nil, zap.NewNop())

	e := events.Event{ID: "e1", Name: events.TaskCreated, Title: "Task created", TraceID: "t-1"}
	if err := h.Handle(context.Background(), message(t, e)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ID != "e1" {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestHandleReturnsSendErrorsForRequeue(t *testing.T) {
	sender := &fakeSender{enabled: true, err: errors.New("slack down")}
	h := NewEventNotificationHandler(sender, nil, zap.NewNop())

	err := h.Handle(context.Background(), message(t, events.Event{ID: "e2", Name: events.TaskDeleted}))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	h := NewEventNotificationHandler(&fakeSender{enabled: true}, nil, zap.NewNop())
	err := h.Handle(context.Background(), mq.Message{ID: "m", RoutingKey: "task.created", Body: json.RawMessage(`{`)})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestHandleSkipsWhenDisabled(t *testing.T) {
	sender := &fakeSender{}
	h := NewEventNotificationHandler(sender, nil, zap.NewNop())
	if err := h.Handle(context.Background(), message(t, events.Event{ID: "e3"})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent while disabled: %+v", sender.sent)
	}
}
