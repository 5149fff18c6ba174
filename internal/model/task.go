package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TaskTodo       = "todo"
	TaskInProgress = "in-progress"
	TaskBlocked    = "blocked"
	TaskReview     = "review"
	TaskDone       = "done"
)

var taskStatuses = []string{TaskTodo, TaskInProgress, TaskBlocked, TaskReview, TaskDone}

const taskIDPrefix = "TASK-"

type TaskUpdate struct {
	Message   string    `json:"message" bson:"message"`
	Author    string    `json:"author" bson:"author"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type TaskCommit struct {
	SHA       string    `json:"sha" bson:"sha"`
	Message   string    `json:"message" bson:"message"`
	Author    string    `json:"author" bson:"author"`
	URL       string    `json:"url" bson:"url"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type Task struct {
	ID             string       `json:"id" bson:"id"`
	Title          string       `json:"title" bson:"title"`
	Description    string       `json:"description" bson:"description"`
	Status         string       `json:"status" bson:"status"`
	Priority       string       `json:"priority" bson:"priority"`
	Assignee       string       `json:"assignee" bson:"assignee"`
	TaskMembers    []string     `json:"taskMembers" bson:"taskMembers"`
	Tags           []string     `json:"tags" bson:"tags"`
	StartDate      *time.Time   `json:"startDate,omitempty" bson:"startDate,omitempty"`
	DueDate        *time.Time   `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	EstimatedHours float64      `json:"estimatedHours" bson:"estimatedHours"`
	Updates        []TaskUpdate `json:"updates" bson:"updates"`
	Commits        []TaskCommit `json:"commits" bson:"commits"`
	CreatedAt      time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Normalize reconciles the legacy assignee field with taskMembers: a
// non-empty assignee is always a member, an empty one takes the first member.
func (t *Task) Normalize() {
	seen := make(map[string]bool, len(t.TaskMembers)+1)
	members := make([]string, 0, len(t.TaskMembers)+1)
	for _, m := range t.TaskMembers {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		members = append(members, m)
	}

	t.Assignee = strings.TrimSpace(t.Assignee)
	if t.Assignee != "" && !seen[t.Assignee] {
		members = append([]string{t.Assignee}, members...)
	}
	if t.Assignee == "" && len(members) > 0 {
		t.Assignee = members[0]
	}
	t.TaskMembers = members

	if t.Tags == nil {
		t.Tags = []string{}
	}
}

// HasCommit reports whether sha is already attached.
func (t *Task) HasCommit(sha string) bool {
	for _, c := range t.Commits {
		if c.SHA == sha {
			return true
		}
	}
	return false
}

func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task title is required", ErrValidation)
	}
	if !oneOf(t.Status, taskStatuses) {
		return fmt.Errorf("%w: invalid task status %q", ErrValidation, t.Status)
	}
	if !oneOf(t.Priority, priorities) {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, t.Priority)
	}
	if t.EstimatedHours < 0 {
		return fmt.Errorf("%w: estimatedHours must not be negative", ErrValidation)
	}
	if t.StartDate != nil && t.DueDate != nil && t.DueDate.Before(*t.StartDate) {
		return fmt.Errorf("%w: dueDate is before startDate", ErrValidation)
	}
	return nil
}

func (t *Task) ApplyDefaults() {
	if t.Status == "" {
		t.Status = TaskTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
}

// IsOpen reports whether the task still needs work.
func (t *Task) IsOpen() bool {
	return t.Status != TaskDone
}

// taskNumber parses the integer part of a TASK-N id.
func taskNumber(id string) (int, bool) {
	if len(id) <= len(taskIDPrefix) || !strings.EqualFold(id[:len(taskIDPrefix)], taskIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(taskIDPrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// CanonicalTaskID maps "task-003" and "TASK-3" to "TASK-3". Ids that are not
// of the TASK-N form are returned unchanged.
func CanonicalTaskID(id string) string {
	n, ok := taskNumber(strings.TrimSpace(id))
	if !ok {
		return strings.TrimSpace(id)
	}
	return taskIDPrefix + strconv.Itoa(n)
}

// NextTaskID allocates the next TASK-NNN id after the highest existing number.
func NextTaskID(tasks []Task) string {
	max := 0
	for _, t := range tasks {
		if n, ok := taskNumber(t.ID); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", taskIDPrefix, max+1)
}
