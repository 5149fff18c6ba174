package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MilestonePending    = "pending"
	MilestoneInProgress = "in-progress"
	MilestoneCompleted  = "completed"
)

var milestoneStatuses = []string{MilestonePending, MilestoneInProgress, MilestoneCompleted}

type Milestone struct {
	ID           string     `json:"id" bson:"id"`
	Title        string     `json:"title" bson:"title"`
	Description  string     `json:"description" bson:"description"`
	DueDate      *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Status       string     `json:"status" bson:"status"`
	Dependencies []string   `json:"dependencies" bson:"dependencies"`
	// Completion is derived from task state and never persisted.
	Completion int `json:"completion" bson:"-"`
}

func (m *Milestone) completion(done map[string]bool) int {
	if len(m.Dependencies) == 0 {
		return 0
	}
	n := 0
	for _, dep := range m.Dependencies {
		if done[CanonicalTaskID(dep)] {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(m.Dependencies))))
}

// Validate checks the milestone against the tasks of its project.
func (m *Milestone) Validate(p *Project) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: milestone title is required", ErrValidation)
	}
	if !oneOf(m.Status, milestoneStatuses) {
		return fmt.Errorf("%w: invalid milestone status %q", ErrValidation, m.Status)
	}
	for _, dep := range m.Dependencies {
		if p.FindTask(dep) < 0 {
			return fmt.Errorf("%w: dependency %s is not a task of this project", ErrValidation, dep)
		}
	}
	return nil
}

func (m *Milestone) ApplyDefaults() {
	if m.Status == "" {
		m.Status = MilestonePending
	}
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
}

// DropDependency removes taskID from the dependency list.
func (m *Milestone) DropDependency(taskID string) bool {
	want := CanonicalTaskID(taskID)
	kept := m.Dependencies[:0]
	removed := false
	for _, dep := range m.Dependencies {
		if CanonicalTaskID(dep) == want {
			removed = true
			continue
		}
		kept = append(kept, dep)
	}
	m.Dependencies = kept
	return removed
}
