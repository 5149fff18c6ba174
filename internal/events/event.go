package events

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ProjectCreated = "project.created"
	ProjectUpdated = "project.updated"
	ProjectDeleted = "project.deleted"

	TaskCreated       = "task.created"
	TaskUpdated       = "task.updated"
	TaskDeleted       = "task.deleted"
	TaskStatusChanged = "task.status_changed"

	MilestoneCreated = "milestone.created"
	MilestoneUpdated = "milestone.updated"
	MilestoneDeleted = "milestone.deleted"

	GitHubPush        = "github.push"
	GitHubPullRequest = "github.pull_request"

	BriefGenerated = "brief.generated"
)

// Notification levels, forwarded to clients as the "type" field.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is a domain event; Name doubles as the AMQP routing key.
type Event struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ProjectID   string          `json:"projectId"`
	ProjectName string          `json:"projectName"`
	Actor       string          `json:"actor,omitempty"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Level       string          `json:"level"`
	Data        json.RawMessage `json:"data,omitempty"`
	TraceID     string          `json:"traceId,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Aggregate returns the prefix of the event name, e.g. "task".
func (e Event) Aggregate() string {
	if i := strings.IndexByte(e.Name, '.'); i > 0 {
		return e.Name[:i]
	}
	return e.Name
}

// WithData encodes v into Data; encoding failures leave Data empty.
func (e Event) WithData(v any) Event {
	if b, err := json.Marshal(v); err == nil {
		e.Data = b
	}
	return e
}
