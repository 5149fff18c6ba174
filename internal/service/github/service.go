package github

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
	"nexus/pkg/rbac"
	"nexus/pkg/util"
)

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) int
}

// RepoAPI is the part of Client the service needs.
type RepoAPI interface {
	ListCommits(ctx context.Context, installationID int64, owner, repo string, limit int) ([]RepoCommit, error)
	ListPullRequests(ctx context.Context, installationID int64, owner, repo string, limit int) ([]PullRequest, error)
	GetRepository(ctx context.Context, installationID int64, owner, repo string) (*Repository, error)
	ListInstallationRepositories(ctx context.Context, installationID int64) ([]Repository, error)
}

// Service connects projects to repositories and keeps their activity and
// task links up to date from webhooks and on-demand syncs.
type Service struct {
	store         repository.ProjectStore
	api           RepoAPI
	publisher     EventPublisher
	deduper       *util.Deduper
	webhookSecret string
	syncLimit     int
	logger        *zap.Logger
	now           func() time.Time
}

// NewService wires the integration. api may be nil when no App is configured;
// webhooks still work, sync and repository listing do not.
func NewService(store repository.ProjectStore, api RepoAPI, publisher EventPublisher, deduper *util.Deduper, webhookSecret string, logger *zap.Logger) *Service {
	return &Service{
		store:         store,
		api:           api,
		publisher:     publisher,
		deduper:       deduper,
		webhookSecret: webhookSecret,
		syncLimit:     30,
		logger:        logger,
		now:           time.Now,
	}
}

type ConnectInput struct {
	RepoOwner      string `json:"repoOwner"`
	RepoName       string `json:"repoName"`
	InstallationID int64  `json:"installationId"`
}

// WithSyncLimit sets how many commits and pull requests a sync fetches.
func (s *Service) WithSyncLimit(n int) *Service {
	if n > 0 {
		s.syncLimit = n
	}
	return s
}

// Connect links the project to a repository. When the App is configured the
// repository is checked for reachability first.
func (s *Service) Connect(ctx context.Context, actor service.Actor, projectID string, in ConnectInput) (*model.Project, error) {
	in.RepoOwner = strings.TrimSpace(in.RepoOwner)
	in.RepoName = strings.TrimSpace(in.RepoName)
	if in.RepoOwner == "" || in.RepoName == "" {
		return nil, fmt.Errorf("%w: repoOwner and repoName are required", model.ErrValidation)
	}
	if in.InstallationID <= 0 {
		return nil, fmt.Errorf("%w: installationId is required", model.ErrValidation)
	}

	if s.api != nil {
		p, err := s.store.Get(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if err := service.Authorize(p, actor, rbac.PermissionManageGitHub); err != nil {
			return nil, err
		}
		if _, err := s.api.GetRepository(ctx, in.InstallationID, in.RepoOwner, in.RepoName); err != nil {
			return nil, fmt.Errorf("%w: repository %s/%s is not reachable: %v", model.ErrValidation, in.RepoOwner, in.RepoName, err)
		}
	}

	p, err := repository.Update(ctx, s.store, projectID, func(p *model.Project) error {
		if err := service.Authorize(p, actor, rbac.PermissionManageGitHub); err != nil {
			return err
		}
		p.GitHub = &model.GitHubLink{
			RepoOwner:      in.RepoOwner,
			RepoName:       in.RepoName,
			InstallationID: in.InstallationID,
		}
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project connected to repository",
		zap.String("project_id", p.ID),
		zap.String("repo", in.RepoOwner+"/"+in.RepoName),
		zap.Int64("installation_id", in.InstallationID),
	)
	s.publisher.Publish(ctx, events.Event{
		Name:        events.ProjectUpdated,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       actor.Label(),
		Title:       "Repository connected",
		Message:     fmt.Sprintf("%s is now linked to %s/%s", p.Name, in.RepoOwner, in.RepoName),
		Level:       events.LevelSuccess,
	})
	return p, nil
}

func (s *Service) Disconnect(ctx context.Context, actor service.Actor, projectID string) (*model.Project, error) {
	p, err := repository.Update(ctx, s.store, projectID, func(p *model.Project) error {
		if err := service.Authorize(p, actor, rbac.PermissionManageGitHub); err != nil {
			return err
		}
		p.GitHub = nil
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Event{
		Name:        events.ProjectUpdated,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       actor.Label(),
		Title:       "Repository disconnected",
		Message:     p.Name + " is no longer linked to GitHub",
		Level:       events.LevelInfo,
	})
	return p, nil
}

// Activity returns the project's activity log, newest first.
func (s *Service) Activity(ctx context.Context, actor service.Actor, projectID string, limit int) ([]model.GitHubActivity, error) {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := service.Authorize(p, actor, rbac.PermissionReadProject); err != nil {
		return nil, err
	}

	out := make([]model.GitHubActivity, len(p.GitHubActivity))
	copy(out, p.GitHubActivity)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) InstallationRepositories(ctx context.Context, installationID int64) ([]Repository, error) {
	if s.api == nil {
		return nil, ErrAppNotConfigured
	}
	repos, err := s.api.ListInstallationRepositories(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	return repos, nil
}

// publishStatusChanges emits one task.status_changed per change.
func (s *Service) publishStatusChanges(ctx context.Context, p *model.Project, actor string, changes []StatusChange) {
	for _, c := range changes {
		s.publisher.Publish(ctx, events.Event{
			Name:        events.TaskStatusChanged,
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Actor:       actor,
			Title:       "Task moved to " + c.To,
			Message:     fmt.Sprintf("%s %s: %s → %s", c.TaskID, c.Title, c.From, c.To),
			Level:       events.LevelInfo,
		}.WithData(map[string]string{"taskId": c.TaskID, "from": c.From, "to": c.To}))
	}
}
