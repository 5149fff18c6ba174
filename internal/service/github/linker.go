package github

import (
	"regexp"
	"time"

	"nexus/internal/model"
)

var taskRefPattern = regexp.MustCompile(`(?i)TASK-(\d+)`)

// ExtractTaskRefs returns the task ids referenced in a commit message in
// canonical form (TASK-3 for "task-003"), first-seen order, without duplicates.
func ExtractTaskRefs(message string) []string {
	matches := taskRefPattern.FindAllString(message, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		id := model.CanonicalTaskID(m)
		if seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, id)
	}
	return refs
}

// Commit is a commit as seen by the webhook or the sync.
type Commit struct {
	SHA       string
	Message   string
	Author    string
	URL       string
	Branch    string
	Timestamp time.Time
}

type StatusChange struct {
	TaskID string
	Title  string
	From   string
	To     string
}

type LinkResult struct {
	// Linked holds the ids of the project's tasks the commit references.
	Linked []string
	// Attached counts tasks that received the commit for the first time.
	Attached      int
	StatusChanges []StatusChange
}

// LinkCommit attaches c to every task it references. Tasks that have not
// been started are moved to in-progress with a single update record.
func LinkCommit(p *model.Project, c Commit, now time.Time) LinkResult {
	var res LinkResult
	for _, ref := range ExtractTaskRefs(c.Message) {
		i := p.FindTask(ref)
		if i < 0 {
			continue
		}
		t := &p.Tasks[i]
		res.Linked = append(res.Linked, t.ID)
		if t.HasCommit(c.SHA) {
			continue
		}

		ts := c.Timestamp
		if ts.IsZero() {
			ts = now
		}
		t.Commits = append(t.Commits, model.TaskCommit{
			SHA:       c.SHA,
			Message:   c.Message,
			Author:    c.Author,
			URL:       c.URL,
			Timestamp: ts,
		})
		t.UpdatedAt = now
		res.Attached++

		switch t.Status {
		case model.TaskDone, model.TaskReview, model.TaskInProgress:
			continue
		}
		res.StatusChanges = append(res.StatusChanges, StatusChange{
			TaskID: t.ID,
			Title:  t.Title,
			From:   t.Status,
			To:     model.TaskInProgress,
		})
		t.Status = model.TaskInProgress
		t.Updates = append(t.Updates, model.TaskUpdate{
			Message:   "Moved to in-progress by commit " + model.ShortSHA(c.SHA),
			Author:    c.Author,
			Timestamp: now,
		})
	}
	return res
}

// pushActivity builds the activity entry for a pushed or synced commit.
func pushActivity(c Commit, linked []string) model.GitHubActivity {
	if linked == nil {
		linked = []string{}
	}
	return model.GitHubActivity{
		ID:          "push-" + model.ShortSHA(c.SHA),
		Type:        model.ActivityPush,
		SHA:         c.SHA,
		ShortSHA:    model.ShortSHA(c.SHA),
		Message:     c.Message,
		Author:      c.Author,
		URL:         c.URL,
		Branch:      c.Branch,
		LinkedTasks: linked,
		Timestamp:   c.Timestamp,
	}
}
