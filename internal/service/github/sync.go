package github

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/rbac"
)

type SyncResult struct {
	Commits       int      `json:"commits"`
	PullRequests  int      `json:"pullRequests"`
	NewActivities int      `json:"newActivities"`
	LinkedTasks   int      `json:"linkedTasks"`
	StatusChanges int      `json:"statusChanges"`
	Warnings      []string `json:"warnings"`
}

// Sync pulls recent commits and pull requests for the project's repository
// and applies them the same way webhooks do. A failed GitHub call becomes a
// warning and whatever was fetched is still saved.
func (s *Service) Sync(ctx context.Context, actor service.Actor, projectID string) (*SyncResult, error) {
	if s.api == nil {
		return nil, ErrAppNotConfigured
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("project_id", projectID))

	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := service.Authorize(p, actor, rbac.PermissionManageGitHub); err != nil {
		return nil, err
	}
	if p.GitHub == nil {
		return nil, fmt.Errorf("%w: project is not connected to a repository", model.ErrValidation)
	}
	link := *p.GitHub

	var (
		commits            []RepoCommit
		pulls              []PullRequest
		commitErr, pullErr error
	)
	// Errors are kept per call: one failing fetch must not cancel the other,
	// so the group only joins and never returns an error itself.
	var g errgroup.Group
	g.Go(func() error {
		commits, commitErr = s.api.ListCommits(ctx, link.InstallationID, link.RepoOwner, link.RepoName, s.syncLimit)
		return nil
	})
	g.Go(func() error {
		pulls, pullErr = s.api.ListPullRequests(ctx, link.InstallationID, link.RepoOwner, link.RepoName, s.syncLimit)
		return nil
	})
	g.Wait()

	res := &SyncResult{Warnings: []string{}}
	if commitErr != nil {
		log.Warn("Commit fetch failed during sync", zap.Error(commitErr))
		res.Warnings = append(res.Warnings, "commits: "+commitErr.Error())
	}
	if pullErr != nil {
		log.Warn("Pull request fetch failed during sync", zap.Error(pullErr))
		res.Warnings = append(res.Warnings, "pull requests: "+pullErr.Error())
	}
	if commitErr != nil && pullErr != nil {
		return nil, fmt.Errorf("sync %s/%s: %w: %v", link.RepoOwner, link.RepoName, model.ErrUpstream, commitErr)
	}
	res.Commits = len(commits)
	res.PullRequests = len(pulls)

	var changes []StatusChange
	updated, err := repository.Update(ctx, s.store, projectID, func(p *model.Project) error {
		now := s.now()
		changes = nil
		res.NewActivities, res.LinkedTasks = 0, 0

		// oldest first so activity and task history read chronologically
		for i := len(commits) - 1; i >= 0; i-- {
			c := toCommit(commits[i])
			lr := LinkCommit(p, c, now)
			changes = append(changes, lr.StatusChanges...)
			res.LinkedTasks += lr.Attached
			if p.AppendActivity(pushActivity(c, lr.Linked)) {
				res.NewActivities++
			}
		}
		for i := len(pulls) - 1; i >= 0; i-- {
			pr := pulls[i]
			if p.AppendActivity(prActivity(pr, pullAction(pr), pr.UpdatedAt)) {
				res.NewActivities++
			}
		}
		if res.NewActivities == 0 && res.LinkedTasks == 0 {
			return repository.ErrUnchanged
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.StatusChanges = len(changes)
	metrics.AddLinkedCommits("sync", res.LinkedTasks)

	log.Info("GitHub sync finished",
		zap.Int("commits", res.Commits),
		zap.Int("pull_requests", res.PullRequests),
		zap.Int("new_activities", res.NewActivities),
		zap.Int("linked_tasks", res.LinkedTasks),
		zap.Int("warnings", len(res.Warnings)),
	)
	s.publishStatusChanges(ctx, updated, actor.Label(), changes)
	if res.NewActivities > 0 {
		s.publisher.Publish(ctx, events.Event{
			Name:        events.GitHubPush,
			ProjectID:   updated.ID,
			ProjectName: updated.Name,
			Actor:       actor.Label(),
			Title:       "Repository synced",
			Message:     fmt.Sprintf("%d new GitHub activities from %s/%s", res.NewActivities, link.RepoOwner, link.RepoName),
			Level:       events.LevelInfo,
		})
	}
	return res, nil
}

func toCommit(rc RepoCommit) Commit {
	author := rc.Commit.Author.Name
	if rc.Author != nil && rc.Author.Login != "" {
		author = rc.Author.Login
	}
	return Commit{
		SHA:       rc.SHA,
		Message:   rc.Commit.Message,
		Author:    author,
		URL:       rc.HTMLURL,
		Timestamp: rc.Commit.Author.Date,
	}
}

// pullAction maps a listed pull request onto the webhook action vocabulary.
func pullAction(pr PullRequest) string {
	switch {
	case pr.MergedAt != nil || pr.Merged:
		return "merged"
	case strings.EqualFold(pr.State, "closed"):
		return "closed"
	default:
		return "opened"
	}
}
