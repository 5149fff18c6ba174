package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
)

const signaturePrefix = "sha256="

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookPong      = "pong"
)

// Delivery is one webhook request as received.
type Delivery struct {
	Event     string // X-GitHub-Event
	ID        string // X-GitHub-Delivery
	Signature string // X-Hub-Signature-256
	Body      []byte
}

type WebhookResult struct {
	Status   string `json:"status"`
	Event    string `json:"event"`
	Projects int    `json:"projects"`
	Linked   int    `json:"linkedTasks"`
}

// VerifySignature checks header against the HMAC-SHA256 of body. An empty
// secret rejects every delivery.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

type repoPayload struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	} `json:"owner"`
}

func (r repoPayload) owner() string {
	if r.Owner.Login != "" {
		return r.Owner.Login
	}
	return r.Owner.Name
}

type pushPayload struct {
	Ref        string      `json:"ref"`
	Repository repoPayload `json:"repository"`
	Commits    []struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		URL       string    `json:"url"`
		Author    struct {
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"author"`
	} `json:"commits"`
}

type pullRequestPayload struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  repoPayload `json:"repository"`
}

// HandleWebhook verifies and applies one delivery. A bad signature returns
// model.ErrUnauthorized before anything is read or written.
func (s *Service) HandleWebhook(ctx context.Context, d Delivery) (WebhookResult, error) {
	res := WebhookResult{Event: d.Event}
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("event", d.Event),
		zap.String("delivery_id", d.ID),
	)

	if !VerifySignature(s.webhookSecret, d.Body, d.Signature) {
		metrics.IncrementWebhookDelivery(d.Event, "unauthorized")
		log.Warn("Rejected webhook with invalid signature")
		return res, fmt.Errorf("webhook signature: %w", model.ErrUnauthorized)
	}

	if d.Event == "ping" {
		metrics.IncrementWebhookDelivery(d.Event, WebhookPong)
		res.Status = WebhookPong
		return res, nil
	}

	if !s.deduper.AcquireOnce(ctx, "github-delivery", d.ID) {
		metrics.IncrementWebhookDelivery(d.Event, WebhookDuplicate)
		res.Status = WebhookDuplicate
		return res, nil
	}

	var err error
	switch d.Event {
	case "push":
		err = s.handlePush(ctx, d.Body, &res)
	case "pull_request":
		err = s.handlePullRequest(ctx, d.Body, &res)
	default:
		res.Status = WebhookIgnored
	}
	if err != nil {
		// GitHub redelivers with the same id; let that attempt through
		s.deduper.Release(ctx, "github-delivery", d.ID)
		metrics.IncrementWebhookDelivery(d.Event, "error")
		log.Error("Webhook processing failed", zap.Error(err))
		return res, err
	}

	metrics.IncrementWebhookDelivery(d.Event, res.Status)
	log.Info("Webhook handled",
		zap.String("status", res.Status),
		zap.Int("projects", res.Projects),
		zap.Int("linked_tasks", res.Linked),
	)
	return res, nil
}

func (s *Service) handlePush(ctx context.Context, body []byte, res *WebhookResult) error {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: push payload: %v", model.ErrValidation, err)
	}

	projects, err := s.store.FindByRepo(ctx, payload.Repository.owner(), payload.Repository.Name)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		res.Status = WebhookIgnored
		return nil
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	commits := make([]Commit, 0, len(payload.Commits))
	for _, c := range payload.Commits {
		author := c.Author.Username
		if author == "" {
			author = c.Author.Name
		}
		commits = append(commits, Commit{
			SHA:       c.ID,
			Message:   c.Message,
			Author:    author,
			URL:       c.URL,
			Branch:    branch,
			Timestamp: c.Timestamp,
		})
	}

	for _, target := range projects {
		var changes []StatusChange
		linked, appended := 0, 0
		now := s.now()
		p, err := repository.Update(ctx, s.store, target.ID, func(p *model.Project) error {
			changes, linked, appended = nil, 0, 0
			for _, c := range commits {
				lr := LinkCommit(p, c, now)
				changes = append(changes, lr.StatusChanges...)
				linked += lr.Attached
				if p.AppendActivity(pushActivity(c, lr.Linked)) {
					appended++
				}
			}
			if linked == 0 && appended == 0 {
				return repository.ErrUnchanged
			}
			p.UpdatedAt = now
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply push to project %s: %w", target.ID, err)
		}

		res.Projects++
		res.Linked += linked
		metrics.AddLinkedCommits("webhook", linked)
		if linked == 0 && appended == 0 {
			continue
		}

		s.publisher.Publish(ctx, events.Event{
			Name:        events.GitHubPush,
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Actor:       pusher(commits),
			Title:       "New commits pushed",
			Message:     fmt.Sprintf("%d commit(s) pushed to %s", len(commits), branch),
			Level:       events.LevelInfo,
		}.WithData(map[string]any{"branch": branch, "commits": len(commits), "linkedTasks": linked}))
		s.publishStatusChanges(ctx, p, pusher(commits), changes)
	}

	res.Status = WebhookProcessed
	return nil
}

func (s *Service) handlePullRequest(ctx context.Context, body []byte, res *WebhookResult) error {
	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: pull_request payload: %v", model.ErrValidation, err)
	}

	projects, err := s.store.FindByRepo(ctx, payload.Repository.owner(), payload.Repository.Name)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		res.Status = WebhookIgnored
		return nil
	}

	pr := payload.PullRequest
	if pr.Number == 0 {
		pr.Number = payload.Number
	}
	action := payload.Action
	if action == "closed" && pr.Merged {
		action = "merged"
	}
	ts := pr.UpdatedAt
	if ts.IsZero() {
		ts = s.now()
	}
	activity := prActivity(pr, action, ts)

	for _, target := range projects {
		added := false
		p, err := repository.Update(ctx, s.store, target.ID, func(p *model.Project) error {
			added = p.AppendActivity(activity)
			if !added {
				return repository.ErrUnchanged
			}
			p.UpdatedAt = s.now()
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply pull request to project %s: %w", target.ID, err)
		}
		res.Projects++
		if !added {
			continue
		}

		level := events.LevelInfo
		if action == "merged" {
			level = events.LevelSuccess
		}
		s.publisher.Publish(ctx, events.Event{
			Name:        events.GitHubPullRequest,
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Actor:       pr.User.Login,
			Title:       fmt.Sprintf("Pull request #%d %s", pr.Number, action),
			Message:     pr.Title,
			Level:       level,
		}.WithData(map[string]any{"number": pr.Number, "action": action, "url": pr.HTMLURL}))
	}

	res.Status = WebhookProcessed
	return nil
}

func prActivity(pr PullRequest, action string, ts time.Time) model.GitHubActivity {
	return model.GitHubActivity{
		ID:          fmt.Sprintf("pr-%d-%s", pr.Number, action),
		Type:        model.ActivityPullRequest,
		Message:     pr.Title,
		Author:      pr.User.Login,
		URL:         pr.HTMLURL,
		Branch:      pr.Head.Ref,
		PRNumber:    pr.Number,
		PRTitle:     pr.Title,
		Action:      action,
		LinkedTasks: refsOrEmpty(ExtractTaskRefs(pr.Title + " " + pr.Head.Ref)),
		Timestamp:   ts,
	}
}

func refsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

func pusher(commits []Commit) string {
	if len(commits) == 0 {
		return ""
	}
	return commits[len(commits)-1].Author
}
