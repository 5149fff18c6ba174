package brief

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
)

type fakeModel struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeModel) Configured() bool { return true }
func (f *fakeModel) Name() string     { return "fake" }
func (f *fakeModel) Generate(context.Context, string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type nopPublisher struct{ n atomic.Int32 }

func (p *nopPublisher) Publish(context.Context, events.Event) int {
	p.n.Add(1)
	return 0
}

var owner = service.Actor{UserID: "u1", Email: "owner@example.com"}

func seed(t *testing.T, store *repository.MemoryStore, updatedAt time.Time) {
	t.Helper()
	p := &model.Project{
		ID: "p1", Name: "Apollo", Status: model.ProjectActive, Priority: model.PriorityHigh,
		CreatedBy: owner.UserID, CreatedAt: updatedAt, UpdatedAt: updatedAt,
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

const fenced = "```json\n{\"summary\": \"On track\", \"health\": \"on-track\", \"risks\": [], \"recommendations\": [\"ship\"], \"highlights\": []}\n```"

func TestBriefIsCachedUntilProjectChanges(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, now.Add(-time.Hour))

	gen := &fakeModel{text: fenced}
	pub := &nopPublisher{}
	svc := NewService(store, gen, pub, 24*time.Hour, zap.NewNop())
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := svc.Get(ctx, owner, "p1", false)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if first.Cached {
		t.Error("first result marked cached")
	}

	now = now.Add(2 * time.Hour)
	second, err := svc.Get(ctx, owner, "p1", false)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !second.Cached {
		t.Error("second result not cached")
	}
	if diff := cmp.Diff(string(first.Brief), string(second.Brief)); diff != "" {
		t.Errorf("brief changed (-first +second):\n%s", diff)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("model calls = %d, want 1", n)
	}
	if n := pub.n.Load(); n != 1 {
		t.Errorf("brief.generated events = %d, want 1", n)
	}

	// a project change after generation invalidates the cache
	_, err = repository.Update(ctx, store, "p1", func(p *model.Project) error {
		p.UpdatedAt = now.Add(time.Minute)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := svc.Get(ctx, owner, "p1", false); err != nil {
		t.Fatalf("third Get: %v", err)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("model calls = %d, want 2", n)
	}
}

func TestBriefRefreshAndExpiry(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, now.Add(-time.Hour))
	gen := &fakeModel{text: fenced}
	svc := NewService(store, gen, &nopPublisher{}, 24*time.Hour, zap.NewNop())
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = svc.Get(ctx, owner, "p1", false)
	if _, err := svc.Get(ctx, owner, "p1", true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	now = now.Add(25 * time.Hour)
	if _, err := svc.Get(ctx, owner, "p1", false); err != nil {
		t.Fatalf("expired: %v", err)
	}
	if n := gen.calls.Load(); n != 3 {
		t.Errorf("model calls = %d, want 3", n)
	}
}

func TestBriefErrors(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, time.Now().Add(-time.Hour))
	ctx := context.Background()

	noKey := NewService(store, NewGeminiClient("", "gemini", "http://unused", time.Second, zap.NewNop()), &nopPublisher{}, 0, zap.NewNop())
	if _, err := noKey.Get(ctx, owner, "p1", false); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("missing key: err = %v, want ErrUnavailable", err)
	}

	failing := NewService(store, &fakeModel{err: errors.New("boom")}, &nopPublisher{}, 0, zap.NewNop())
	if _, err := failing.Get(ctx, owner, "p1", false); !errors.Is(err, model.ErrUpstream) {
		t.Errorf("model failure: err = %v, want ErrUpstream", err)
	}

	garbage := NewService(store, &fakeModel{text: "I cannot help with that"}, &nopPublisher{}, 0, zap.NewNop())
	if _, err := garbage.Get(ctx, owner, "p1", false); !errors.Is(err, model.ErrUpstream) {
		t.Errorf("invalid output: err = %v, want ErrUpstream", err)
	}

	stranger := service.Actor{UserID: "u9"}
	if _, err := failing.Get(ctx, stranger, "p1", false); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("stranger: err = %v, want ErrNotFound", err)
	}
}

func TestParseBrief(t *testing.T) {
	got, err := ParseBrief(fenced)
	if err != nil {
		t.Fatalf("ParseBrief: %v", err)
	}
	want := `{"summary":"On track","health":"on-track","risks":[],"recommendations":["ship"],"highlights":[]}`
	if string(got) != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
	if _, err := ParseBrief(`{"health":"at-risk"}`); err == nil {
		t.Error("brief without summary accepted")
	}
}

func TestGeminiClient(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"summary\":"},{"text":"\"ok\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("k-1", "gemini-1.5-flash", srv.URL, time.Second, zap.NewNop())
	text, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != `{"summary":"ok"}` {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" || gotKey != "k-1" {
		t.Errorf("path = %q key = %q", gotPath, gotKey)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "hello" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestGeminiClientReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient("k-1", "m", srv.URL, time.Second, zap.NewNop())
	_, err := c.Generate(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
}
