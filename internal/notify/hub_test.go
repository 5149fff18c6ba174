package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nexus/internal/events"
)

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for hub.Count() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := hub.Handle(ctx, events.Event{Name: events.TaskCreated, Title: "Task created", Message: "TASK-001", Level: events.LevelInfo}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var got envelope
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := envelope{Event: "notification", Data: Notification{Title: "Task created", Message: "TASK-001", Type: "info"}}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
