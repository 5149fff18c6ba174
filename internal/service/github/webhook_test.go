package github

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/pkg/util"
)

const testSecret = "s3cret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return 0
}

func (r *recordingPublisher) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func newLinkedProject(t *testing.T, store *repository.MemoryStore) *model.Project {
	t.Helper()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &model.Project{
		ID:        "p1",
		Name:      "Apollo",
		Status:    model.ProjectActive,
		Priority:  model.PriorityHigh,
		CreatedBy: "u1",
		Tasks: []model.Task{
			{ID: "TASK-003", Title: "Wire login", Status: model.TaskTodo, Priority: model.PriorityMedium},
		},
		GitHub:    &model.GitHubLink{RepoOwner: "acme", RepoName: "apollo", InstallationID: 42},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

const pushBody = `{
  "ref": "refs/heads/main",
  "repository": {"name": "apollo", "owner": {"login": "acme"}},
  "commits": [
    {"id": "abcdef1234567890", "message": "fixes TASK-003", "timestamp": "2024-05-02T10:00:00Z",
     "url": "https://github.com/acme/apollo/commit/abcdef1", "author": {"name": "Ada", "username": "ada"}}
  ]
}`

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, nil, testSecret, zap.NewNop())

	before, _ := store.Get(context.Background(), "p1")
	for _, sig := range []string{"", "sha256=00", Sign("wrong", []byte(pushBody))} {
		_, err := svc.HandleWebhook(context.Background(), Delivery{
			Event: "push", ID: "d1", Signature: sig, Body: []byte(pushBody),
		})
		if !errors.Is(err, model.ErrUnauthorized) {
			t.Fatalf("signature %q: err = %v, want ErrUnauthorized", sig, err)
		}
	}

	after, _ := store.Get(context.Background(), "p1")
	if after.Version != before.Version || len(after.GitHubActivity) != 0 || after.Tasks[0].Status != model.TaskTodo {
		t.Errorf("project changed after rejected webhook: %+v", after)
	}
	if len(pub.names()) != 0 {
		t.Errorf("events published: %v", pub.names())
	}
}

func TestWebhookPushLinksCommits(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, nil, testSecret, zap.NewNop())

	res, err := svc.HandleWebhook(context.Background(), Delivery{
		Event: "push", ID: "d1", Signature: Sign(testSecret, []byte(pushBody)), Body: []byte(pushBody),
	})
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if res.Status != WebhookProcessed || res.Projects != 1 || res.Linked != 1 {
		t.Fatalf("result = %+v", res)
	}

	p, _ := store.Get(context.Background(), "p1")
	task := p.Tasks[0]
	if task.Status != model.TaskInProgress || len(task.Commits) != 1 || len(task.Updates) != 1 {
		t.Errorf("task = %+v", task)
	}
	if len(p.GitHubActivity) != 1 || p.GitHubActivity[0].ShortSHA != "abcdef1" || p.GitHubActivity[0].Branch != "main" {
		t.Errorf("activity = %+v", p.GitHubActivity)
	}

	names := pub.names()
	if len(names) != 2 || names[0] != events.GitHubPush || names[1] != events.TaskStatusChanged {
		t.Errorf("events = %v", names)
	}
}

func TestWebhookIgnoresUnknownRepositoryAndEvents(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	svc := NewService(store, nil, &recordingPublisher{}, nil, testSecret, zap.NewNop())

	other := `{"ref":"refs/heads/main","repository":{"name":"zeus","owner":{"login":"acme"}},"commits":[]}`
	cases := []Delivery{
		{Event: "push", ID: "d2", Body: []byte(other)},
		{Event: "issues", ID: "d3", Body: []byte(`{}`)},
	}
	for _, d := range cases {
		d.Signature = Sign(testSecret, d.Body)
		res, err := svc.HandleWebhook(context.Background(), d)
		if err != nil {
			t.Fatalf("%s: %v", d.Event, err)
		}
		if res.Status != WebhookIgnored {
			t.Errorf("%s: status = %q, want ignored", d.Event, res.Status)
		}
	}

	ping := Delivery{Event: "ping", ID: "d4", Body: []byte(`{"zen":"hi"}`)}
	ping.Signature = Sign(testSecret, ping.Body)
	res, err := svc.HandleWebhook(context.Background(), ping)
	if err != nil || res.Status != WebhookPong {
		t.Errorf("ping = %+v, %v", res, err)
	}
}

func TestWebhookPullRequestMerged(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, nil, testSecret, zap.NewNop())

	body := []byte(`{"action":"closed","number":7,"repository":{"name":"apollo","owner":{"login":"acme"}},
	  "pull_request":{"number":7,"title":"TASK-3 login","merged":true,"html_url":"https://x/7",
	  "user":{"login":"ada"},"head":{"ref":"feature/login"},"updated_at":"2024-05-03T09:00:00Z"}}`)
	d := Delivery{Event: "pull_request", ID: "d5", Signature: Sign(testSecret, body), Body: body}

	for i := 0; i < 2; i++ {
		if _, err := svc.HandleWebhook(context.Background(), d); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
	}

	p, _ := store.Get(context.Background(), "p1")
	if len(p.GitHubActivity) != 1 {
		t.Fatalf("activity = %+v, want one entry", p.GitHubActivity)
	}
	a := p.GitHubActivity[0]
	if a.Action != "merged" || a.PRNumber != 7 || len(a.LinkedTasks) != 1 || a.LinkedTasks[0] != "TASK-3" {
		t.Errorf("activity = %+v", a)
	}
	if names := pub.names(); len(names) != 1 || names[0] != events.GitHubPullRequest {
		t.Errorf("events = %v", names)
	}
}

// flakyStore fails the first n saves with a transport error.
type flakyStore struct {
	*repository.MemoryStore
	failures int
}

func (f *flakyStore) Save(ctx context.Context, p *model.Project) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MemoryStore.Save(ctx, p)
}

func TestWebhookRedeliveryAfterFailureIsProcessed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	deduper := util.NewDeduper(rdb, time.Hour, zap.NewNop())

	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), failures: 1}
	newLinkedProject(t, store.MemoryStore)
	svc := NewService(store, nil, &recordingPublisher{}, deduper, testSecret, zap.NewNop())

	d := Delivery{Event: "push", ID: "d1", Signature: Sign(testSecret, []byte(pushBody)), Body: []byte(pushBody)}
	if _, err := svc.HandleWebhook(context.Background(), d); err == nil {
		t.Fatal("first attempt succeeded, want store error")
	}

	res, err := svc.HandleWebhook(context.Background(), d)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res.Status != WebhookProcessed || res.Linked != 1 {
		t.Errorf("redelivery result = %+v", res)
	}
	p, _ := store.Get(context.Background(), "p1")
	if p.Tasks[0].Status != model.TaskInProgress || len(p.Tasks[0].Commits) != 1 {
		t.Errorf("task after redelivery = %+v", p.Tasks[0])
	}

	res, err = svc.HandleWebhook(context.Background(), d)
	if err != nil || res.Status != WebhookDuplicate {
		t.Errorf("third delivery = %+v, %v; want duplicate", res, err)
	}
}

func TestWebhookPushWithoutChangesLeavesProject(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, nil, testSecret, zap.NewNop())

	sig := Sign(testSecret, []byte(pushBody))
	if _, err := svc.HandleWebhook(context.Background(), Delivery{Event: "push", ID: "d1", Signature: sig, Body: []byte(pushBody)}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	before, _ := store.Get(context.Background(), "p1")

	// same commits under a new delivery id, as after a manual sync
	res, err := svc.HandleWebhook(context.Background(), Delivery{Event: "push", ID: "d2", Signature: sig, Body: []byte(pushBody)})
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if res.Linked != 0 {
		t.Errorf("linked = %d, want 0", res.Linked)
	}

	after, _ := store.Get(context.Background(), "p1")
	if after.Version != before.Version || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("project touched: version %d -> %d, updatedAt %v -> %v",
			before.Version, after.Version, before.UpdatedAt, after.UpdatedAt)
	}
	if names := pub.names(); len(names) != 2 {
		t.Errorf("events = %v, want only those of the first push", names)
	}
}
