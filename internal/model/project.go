package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectOnHold    = "on-hold"
	ProjectCompleted = "completed"
	ProjectArchived  = "archived"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

var (
	projectStatuses = []string{ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived}
	priorities      = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
)

// GitHubLink ties a project to a repository reachable through an App installation.
type GitHubLink struct {
	RepoOwner      string `json:"repoOwner" bson:"repoOwner"`
	RepoName       string `json:"repoName" bson:"repoName"`
	InstallationID int64  `json:"installationId" bson:"installationId"`
}

// ExecutiveBrief is the cached model output, stored verbatim.
type ExecutiveBrief struct {
	Content     json.RawMessage `json:"content" bson:"content"`
	GeneratedAt time.Time       `json:"generatedAt" bson:"generatedAt"`
}

// Project is the aggregate root; everything below it is embedded.
type Project struct {
	ID                        string                     `json:"id" bson:"_id"`
	Name                      string                     `json:"name" bson:"name"`
	Description               string                     `json:"description" bson:"description"`
	Status                    string                     `json:"status" bson:"status"`
	Priority                  string                     `json:"priority" bson:"priority"`
	StartDate                 *time.Time                 `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate                   *time.Time                 `json:"endDate,omitempty" bson:"endDate,omitempty"`
	CreatedBy                 string                     `json:"createdBy" bson:"createdBy"`
	TeamMembers               []string                   `json:"teamMembers" bson:"teamMembers"`
	Tasks                     []Task                     `json:"tasks" bson:"tasks"`
	Milestones                []Milestone                `json:"milestones" bson:"milestones"`
	FunctionalRequirements    []FunctionalRequirement    `json:"functionalRequirements" bson:"functionalRequirements"`
	NonFunctionalRequirements []NonFunctionalRequirement `json:"nonFunctionalRequirements" bson:"nonFunctionalRequirements"`
	GitHubActivity            []GitHubActivity           `json:"githubActivity" bson:"githubActivity"`
	GitHub                    *GitHubLink                `json:"github,omitempty" bson:"github,omitempty"`
	ExecutiveBrief            *ExecutiveBrief            `json:"executiveBrief,omitempty" bson:"executiveBrief,omitempty"`
	Version                   int64                      `json:"version" bson:"version"`
	CreatedAt                 time.Time                  `json:"createdAt" bson:"createdAt"`
	UpdatedAt                 time.Time                  `json:"updatedAt" bson:"updatedAt"`
}

// IsOwner reports whether userID created the project.
func (p *Project) IsOwner(userID string) bool {
	return userID != "" && p.CreatedBy == userID
}

// IsMember matches team members by user id or, case-insensitively, by email.
func (p *Project) IsMember(userID, email string) bool {
	for _, m := range p.TeamMembers {
		if m == userID || (email != "" && strings.EqualFold(m, email)) {
			return true
		}
	}
	return false
}

// AddMember appends member unless already present and reports whether it changed.
func (p *Project) AddMember(member string) bool {
	member = strings.TrimSpace(member)
	if member == "" {
		return false
	}
	for _, m := range p.TeamMembers {
		if strings.EqualFold(m, member) {
			return false
		}
	}
	p.TeamMembers = append(p.TeamMembers, member)
	return true
}

func (p *Project) RemoveMember(member string) bool {
	for i, m := range p.TeamMembers {
		if strings.EqualFold(m, member) {
			p.TeamMembers = append(p.TeamMembers[:i], p.TeamMembers[i+1:]...)
			return true
		}
	}
	return false
}

// FindTask returns the index of the task whose id matches ref in canonical form, or -1.
func (p *Project) FindTask(ref string) int {
	want := CanonicalTaskID(ref)
	if want == "" {
		return -1
	}
	for i := range p.Tasks {
		if CanonicalTaskID(p.Tasks[i].ID) == want {
			return i
		}
	}
	return -1
}

func (p *Project) FindMilestone(id string) int {
	for i := range p.Milestones {
		if p.Milestones[i].ID == id {
			return i
		}
	}
	return -1
}

// RefreshCompletion recomputes every milestone's completion from current task state.
func (p *Project) RefreshCompletion() {
	done := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		done[CanonicalTaskID(t.ID)] = t.Status == TaskDone
	}
	for i := range p.Milestones {
		p.Milestones[i].Completion = p.Milestones[i].completion(done)
	}
}

// BriefFresh reports whether the cached brief can be served at now.
func (p *Project) BriefFresh(now time.Time, ttl time.Duration) bool {
	b := p.ExecutiveBrief
	if b == nil || len(b.Content) == 0 || b.GeneratedAt.IsZero() {
		return false
	}
	if now.Sub(b.GeneratedAt) >= ttl {
		return false
	}
	return !b.GeneratedAt.Before(p.UpdatedAt)
}

// Validate checks scalar fields; embedded collections are validated on their own writes.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}
	if !oneOf(p.Status, projectStatuses) {
		return fmt.Errorf("%w: invalid project status %q", ErrValidation, p.Status)
	}
	if !oneOf(p.Priority, priorities) {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, p.Priority)
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return fmt.Errorf("%w: endDate is before startDate", ErrValidation)
	}
	return nil
}

// ApplyDefaults fills empty status and priority.
func (p *Project) ApplyDefaults() {
	if p.Status == "" {
		p.Status = ProjectPlanning
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
