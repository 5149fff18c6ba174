package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/service"
	"nexus/pkg/rbac"
)

type MilestoneInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DueDate      *time.Time `json:"dueDate"`
	Status       string     `json:"status"`
	Dependencies []string   `json:"dependencies"`
}

type MilestonePatch struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	DueDate      *time.Time `json:"dueDate"`
	Status       *string    `json:"status"`
	Dependencies *[]string  `json:"dependencies"`
}

// Milestones returns the project's milestones with completion filled in.
func (s *Service) Milestones(ctx context.Context, actor service.Actor, projectID string) ([]model.Milestone, error) {
	p, err := s.load(ctx, actor, projectID, rbac.PermissionReadProject)
	if err != nil {
		return nil, err
	}
	return p.Milestones, nil
}

func (s *Service) CreateMilestone(ctx context.Context, actor service.Actor, projectID string, in MilestoneInput) (*model.Milestone, error) {
	var id string
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteMilestone, func(p *model.Project) error {
		m := model.Milestone{
			ID:           uuid.NewString(),
			Title:        strings.TrimSpace(in.Title),
			Description:  in.Description,
			DueDate:      in.DueDate,
			Status:       in.Status,
			Dependencies: in.Dependencies,
		}
		m.ApplyDefaults()
		if err := m.Validate(p); err != nil {
			return err
		}
		p.Milestones = append(p.Milestones, m)
		id = m.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	m := p.Milestones[p.FindMilestone(id)]
	s.emit(ctx, p, actor, events.MilestoneCreated, events.LevelSuccess,
		"Milestone created", m.Title, map[string]string{"milestoneId": m.ID})
	return &m, nil
}

func (s *Service) UpdateMilestone(ctx context.Context, actor service.Actor, projectID, milestoneID string, in MilestonePatch) (*model.Milestone, error) {
	var from string
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteMilestone, func(p *model.Project) error {
		i := p.FindMilestone(milestoneID)
		if i < 0 {
			return fmt.Errorf("milestone %s: %w", milestoneID, model.ErrNotFound)
		}
		m := p.Milestones[i]
		from = m.Status
		if in.Title != nil {
			m.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			m.Description = *in.Description
		}
		if in.DueDate != nil {
			m.DueDate = in.DueDate
		}
		if in.Status != nil {
			m.Status = *in.Status
		}
		if in.Dependencies != nil {
			m.Dependencies = *in.Dependencies
		}
		m.ApplyDefaults()
		if err := m.Validate(p); err != nil {
			return err
		}
		p.Milestones[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	m := p.Milestones[p.FindMilestone(milestoneID)]
	level := events.LevelInfo
	if from != m.Status && m.Status == model.MilestoneCompleted {
		level = events.LevelSuccess
	}
	s.emit(ctx, p, actor, events.MilestoneUpdated, level,
		"Milestone updated", m.Title, map[string]any{"milestoneId": m.ID, "status": m.Status, "completion": m.Completion})
	return &m, nil
}

// DeleteMilestone removes the milestone; an unknown id is ErrNotFound, so a
// repeated delete fails.
func (s *Service) DeleteMilestone(ctx context.Context, actor service.Actor, projectID, milestoneID string) error {
	var removed model.Milestone
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteMilestone, func(p *model.Project) error {
		i := p.FindMilestone(milestoneID)
		if i < 0 {
			return fmt.Errorf("milestone %s: %w", milestoneID, model.ErrNotFound)
		}
		removed = p.Milestones[i]
		p.Milestones = append(p.Milestones[:i], p.Milestones[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, p, actor, events.MilestoneDeleted, events.LevelWarning,
		"Milestone deleted", removed.Title, map[string]string{"milestoneId": removed.ID})
	return nil
}
