package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"nexus/internal/events"
)

func TestSlackNotifierPostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, zap.NewNop())
	err := n.Send(context.Background(), events.Event{
		Name:        events.TaskStatusChanged,
		Title:       "Task moved",
		Message:     "TASK-003 is now in-progress",
		ProjectName: "Apollo",
		Level:       events.LevelSuccess,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	text := got["text"]
	for _, want := range []string{"*Task moved*", "_Apollo_", "TASK-003 is now in-progress", ":white_check_mark:"} {
		if !strings.Contains(text, want) {
			t.Errorf("text %q missing %q", text, want)
		}
	}
}

func TestSlackNotifierReportsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, zap.NewNop())
	err := n.Send(context.Background(), events.Event{Name: events.ProjectCreated, Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want status 400", err)
	}
}

func TestSlackNotifierDisabledWithoutURL(t *testing.T) {
	n := NewSlackNotifier("", zap.NewNop())
	if n.Enabled() {
		t.Fatal("expected notifier to be disabled")
	}
	if err := n.Send(context.Background(), events.Event{Name: events.ProjectCreated}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
