package model

import (
	"strconv"
	"time"
)

const (
	ActivityPush        = "push"
	ActivityPullRequest = "pull_request"
)

// GitHubActivity is one entry of a project's append-only activity log.
type GitHubActivity struct {
	ID          string    `json:"id" bson:"id"`
	Type        string    `json:"type" bson:"type"`
	SHA         string    `json:"sha,omitempty" bson:"sha,omitempty"`
	ShortSHA    string    `json:"shortSha,omitempty" bson:"shortSha,omitempty"`
	Message     string    `json:"message" bson:"message"`
	Author      string    `json:"author" bson:"author"`
	URL         string    `json:"url" bson:"url"`
	Branch      string    `json:"branch,omitempty" bson:"branch,omitempty"`
	PRNumber    int       `json:"prNumber,omitempty" bson:"prNumber,omitempty"`
	PRTitle     string    `json:"prTitle,omitempty" bson:"prTitle,omitempty"`
	Action      string    `json:"action,omitempty" bson:"action,omitempty"`
	LinkedTasks []string  `json:"linkedTasks" bson:"linkedTasks"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// DedupeKey identifies an activity entry: pushes by short sha, pull
// requests by number and action.
func (a *GitHubActivity) DedupeKey() string {
	if a.Type == ActivityPullRequest {
		return a.Type + ":" + strconv.Itoa(a.PRNumber) + ":" + a.Action
	}
	return a.Type + ":" + a.ShortSHA
}

// ShortSHA returns the first seven characters of sha.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// AppendActivity adds a unless an entry with the same dedupe key exists.
func (p *Project) AppendActivity(a GitHubActivity) bool {
	key := a.DedupeKey()
	for i := range p.GitHubActivity {
		if p.GitHubActivity[i].DedupeKey() == key {
			return false
		}
	}
	if a.LinkedTasks == nil {
		a.LinkedTasks = []string{}
	}
	p.GitHubActivity = append(p.GitHubActivity, a)
	return true
}
