package github

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
)

var projectOwner = service.Actor{UserID: "u1", Email: "owner@example.com", Name: "Owner"}

type fakeRepoAPI struct {
	commits   []RepoCommit
	pulls     []PullRequest
	commitErr error
	pullErr   error
}

func (f *fakeRepoAPI) ListCommits(context.Context, int64, string, string, int) ([]RepoCommit, error) {
	return f.commits, f.commitErr
}

func (f *fakeRepoAPI) ListPullRequests(context.Context, int64, string, string, int) ([]PullRequest, error) {
	return f.pulls, f.pullErr
}

func (f *fakeRepoAPI) GetRepository(_ context.Context, _ int64, owner, repo string) (*Repository, error) {
	return &Repository{Name: repo, FullName: owner + "/" + repo}, nil
}

func (f *fakeRepoAPI) ListInstallationRepositories(context.Context, int64) ([]Repository, error) {
	return nil, nil
}

func repoCommit(t *testing.T, sha, message, date string) RepoCommit {
	t.Helper()
	raw := `{"sha":"` + sha + `","html_url":"https://github.com/acme/apollo/commit/` + sha + `",
	  "commit":{"message":"` + message + `","author":{"name":"Ada","date":"` + date + `"}},
	  "author":{"login":"ada"}}`
	var c RepoCommit
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("commit fixture: %v", err)
	}
	return c
}

func openPull() PullRequest {
	pr := PullRequest{Number: 9, Title: "TASK-3 login form", State: "open", HTMLURL: "https://x/9"}
	pr.User.Login = "ada"
	pr.Head.Ref = "feature/login"
	pr.UpdatedAt = time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	return pr
}

func TestSync(t *testing.T) {
	upstream := errors.New("github returned 500")

	tests := []struct {
		name         string
		api          func(t *testing.T) *fakeRepoAPI
		wantErr      error
		wantCommits  int
		wantPulls    int
		wantNew      int
		wantWarnings int
	}{
		{
			name: "commits and pull requests",
			api: func(t *testing.T) *fakeRepoAPI {
				return &fakeRepoAPI{
					commits: []RepoCommit{
						repoCommit(t, "bbbbbbb2222", "polish TASK-003", "2024-05-02T11:00:00Z"),
						repoCommit(t, "aaaaaaa1111", "start TASK-003", "2024-05-02T10:00:00Z"),
					},
					pulls: []PullRequest{openPull()},
				}
			},
			wantCommits: 2, wantPulls: 1, wantNew: 3,
		},
		{
			name: "commit fetch fails",
			api: func(t *testing.T) *fakeRepoAPI {
				return &fakeRepoAPI{commitErr: upstream, pulls: []PullRequest{openPull()}}
			},
			wantPulls: 1, wantNew: 1, wantWarnings: 1,
		},
		{
			name: "pull request fetch fails",
			api: func(t *testing.T) *fakeRepoAPI {
				return &fakeRepoAPI{
					commits: []RepoCommit{repoCommit(t, "aaaaaaa1111", "start TASK-003", "2024-05-02T10:00:00Z")},
					pullErr: upstream,
				}
			},
			wantCommits: 1, wantNew: 1, wantWarnings: 1,
		},
		{
			name: "both fetches fail",
			api: func(t *testing.T) *fakeRepoAPI {
				return &fakeRepoAPI{commitErr: upstream, pullErr: upstream}
			},
			wantErr: model.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			newLinkedProject(t, store)
			svc := NewService(store, tt.api(t), &recordingPublisher{}, nil, testSecret, zap.NewNop())

			res, err := svc.Sync(context.Background(), projectOwner, "p1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				p, _ := store.Get(context.Background(), "p1")
				if p.Version != 1 || len(p.GitHubActivity) != 0 {
					t.Errorf("project changed after failed sync: %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sync: %v", err)
			}
			if res.Commits != tt.wantCommits || res.PullRequests != tt.wantPulls ||
				res.NewActivities != tt.wantNew || len(res.Warnings) != tt.wantWarnings {
				t.Errorf("result = %+v", res)
			}
			p, _ := store.Get(context.Background(), "p1")
			if len(p.GitHubActivity) != tt.wantNew {
				t.Errorf("stored activity = %d, want %d", len(p.GitHubActivity), tt.wantNew)
			}
		})
	}
}

func TestSyncAppliesCommitsOldestFirst(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	api := &fakeRepoAPI{commits: []RepoCommit{
		repoCommit(t, "bbbbbbb2222", "polish TASK-003", "2024-05-02T11:00:00Z"),
		repoCommit(t, "aaaaaaa1111", "start TASK-003", "2024-05-02T10:00:00Z"),
	}}
	svc := NewService(store, api, pub, nil, testSecret, zap.NewNop())

	res, err := svc.Sync(context.Background(), projectOwner, "p1")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.LinkedTasks != 2 || res.StatusChanges != 1 {
		t.Errorf("result = %+v", res)
	}

	p, _ := store.Get(context.Background(), "p1")
	var shas []string
	for _, c := range p.Tasks[0].Commits {
		shas = append(shas, c.SHA)
	}
	if diff := cmp.Diff([]string{"aaaaaaa1111", "bbbbbbb2222"}, shas); diff != "" {
		t.Errorf("task commits (-want +got):\n%s", diff)
	}
	if p.Tasks[0].Status != model.TaskInProgress || len(p.Tasks[0].Updates) != 1 {
		t.Errorf("task = %+v", p.Tasks[0])
	}
	if !cmp.Equal([]string{events.TaskStatusChanged, events.GitHubPush}, pub.names()) {
		t.Errorf("events = %v", pub.names())
	}

	// a second sync of the same history adds nothing and does not save
	version := p.Version
	res, err = svc.Sync(context.Background(), projectOwner, "p1")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.NewActivities != 0 || res.LinkedTasks != 0 || res.StatusChanges != 0 {
		t.Errorf("resync result = %+v", res)
	}
	p, _ = store.Get(context.Background(), "p1")
	if p.Version != version {
		t.Errorf("version = %d after no-op resync, want %d", p.Version, version)
	}
	if len(pub.names()) != 2 {
		t.Errorf("resync published events: %v", pub.names())
	}
}

func TestSyncRequiresConnectedRepository(t *testing.T) {
	store := repository.NewMemoryStore()
	p := newLinkedProject(t, store)
	p.GitHub = nil
	if err := store.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc := NewService(store, &fakeRepoAPI{}, &recordingPublisher{}, nil, testSecret, zap.NewNop())
	if _, err := svc.Sync(context.Background(), projectOwner, "p1"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}

	svc = NewService(store, nil, &recordingPublisher{}, nil, testSecret, zap.NewNop())
	if _, err := svc.Sync(context.Background(), projectOwner, "p1"); !errors.Is(err, ErrAppNotConfigured) {
		t.Errorf("err = %v, want ErrAppNotConfigured", err)
	}
}

func TestDisconnect(t *testing.T) {
	store := repository.NewMemoryStore()
	newLinkedProject(t, store)
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, nil, testSecret, zap.NewNop())

	stranger := service.Actor{UserID: "u9", Email: "x@example.com"}
	if _, err := svc.Disconnect(context.Background(), stranger, "p1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("stranger disconnect err = %v, want ErrNotFound", err)
	}

	p, err := svc.Disconnect(context.Background(), projectOwner, "p1")
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if p.GitHub != nil {
		t.Errorf("link = %+v after disconnect", p.GitHub)
	}
	linked, err := store.FindByRepo(context.Background(), "acme", "apollo")
	if err != nil || len(linked) != 0 {
		t.Errorf("FindByRepo = %v, %v; want none", linked, err)
	}

	res, err := svc.HandleWebhook(context.Background(), Delivery{
		Event: "push", ID: "d9", Signature: Sign(testSecret, []byte(pushBody)), Body: []byte(pushBody),
	})
	if err != nil || res.Status != WebhookIgnored {
		t.Errorf("push after disconnect = %+v, %v; want ignored", res, err)
	}
	if names := pub.names(); len(names) != 1 || names[0] != events.ProjectUpdated {
		t.Errorf("events = %v", names)
	}
}
