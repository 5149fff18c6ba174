package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/service"
	"nexus/pkg/rbac"
)

type TaskInput struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Assignee       string     `json:"assignee"`
	TaskMembers    []string   `json:"taskMembers"`
	Tags           []string   `json:"tags"`
	StartDate      *time.Time `json:"startDate"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours float64    `json:"estimatedHours"`
}

type TaskPatch struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	Assignee       *string    `json:"assignee"`
	TaskMembers    *[]string  `json:"taskMembers"`
	Tags           *[]string  `json:"tags"`
	StartDate      *time.Time `json:"startDate"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
}

func (s *Service) CreateTask(ctx context.Context, actor service.Actor, projectID string, in TaskInput) (*model.Task, error) {
	var created model.Task
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteTask, func(p *model.Project) error {
		now := s.now().UTC()
		t := model.Task{
			ID:             model.NextTaskID(p.Tasks),
			Title:          strings.TrimSpace(in.Title),
			Description:    in.Description,
			Status:         in.Status,
			Priority:       in.Priority,
			Assignee:       in.Assignee,
			TaskMembers:    in.TaskMembers,
			Tags:           in.Tags,
			StartDate:      in.StartDate,
			DueDate:        in.DueDate,
			EstimatedHours: in.EstimatedHours,
			Updates:        []model.TaskUpdate{},
			Commits:        []model.TaskCommit{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		t.ApplyDefaults()
		t.Normalize()
		if err := t.Validate(); err != nil {
			return err
		}
		p.Tasks = append(p.Tasks, t)
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, p, actor, events.TaskCreated, events.LevelSuccess,
		"Task created", fmt.Sprintf("%s %s", created.ID, created.Title),
		map[string]string{"taskId": created.ID, "assignee": created.Assignee})
	return &created, nil
}

func (s *Service) UpdateTask(ctx context.Context, actor service.Actor, projectID, taskID string, in TaskPatch) (*model.Task, error) {
	var (
		updated model.Task
		from    string
	)
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteTask, func(p *model.Project) error {
		i := p.FindTask(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		t := p.Tasks[i]
		from = t.Status

		if in.Title != nil {
			t.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if in.Status != nil {
			t.Status = *in.Status
		}
		if in.Priority != nil {
			t.Priority = *in.Priority
		}
		if in.TaskMembers != nil {
			t.TaskMembers = *in.TaskMembers
			if in.Assignee == nil {
				t.Assignee = ""
			}
		}
		if in.Assignee != nil {
			t.Assignee = *in.Assignee
		}
		if in.Tags != nil {
			t.Tags = *in.Tags
		}
		if in.StartDate != nil {
			t.StartDate = in.StartDate
		}
		if in.DueDate != nil {
			t.DueDate = in.DueDate
		}
		if in.EstimatedHours != nil {
			t.EstimatedHours = *in.EstimatedHours
		}
		t.Normalize()
		if err := t.Validate(); err != nil {
			return err
		}
		t.UpdatedAt = s.now().UTC()
		p.Tasks[i] = t
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, p, actor, events.TaskUpdated, events.LevelInfo,
		"Task updated", fmt.Sprintf("%s %s", updated.ID, updated.Title),
		map[string]string{"taskId": updated.ID})
	if from != updated.Status {
		level := events.LevelInfo
		if updated.Status == model.TaskDone {
			level = events.LevelSuccess
		} else if updated.Status == model.TaskBlocked {
			level = events.LevelWarning
		}
		s.emit(ctx, p, actor, events.TaskStatusChanged, level,
			"Task moved to "+updated.Status, fmt.Sprintf("%s %s: %s → %s", updated.ID, updated.Title, from, updated.Status),
			map[string]string{"taskId": updated.ID, "from": from, "to": updated.Status})
	}
	return &updated, nil
}

// DeleteTask removes the task and drops it from every milestone's dependencies.
func (s *Service) DeleteTask(ctx context.Context, actor service.Actor, projectID, taskID string) error {
	var removed model.Task
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteTask, func(p *model.Project) error {
		i := p.FindTask(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		removed = p.Tasks[i]
		p.Tasks = append(p.Tasks[:i], p.Tasks[i+1:]...)
		for j := range p.Milestones {
			p.Milestones[j].DropDependency(removed.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, p, actor, events.TaskDeleted, events.LevelWarning,
		"Task deleted", fmt.Sprintf("%s %s", removed.ID, removed.Title),
		map[string]string{"taskId": removed.ID})
	return nil
}

// AddTaskUpdate appends a progress note written by the actor.
func (s *Service) AddTaskUpdate(ctx context.Context, actor service.Actor, projectID, taskID, message string) (*model.Task, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", model.ErrValidation)
	}
	var updated model.Task
	p, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteTask, func(p *model.Project) error {
		i := p.FindTask(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		now := s.now().UTC()
		t := &p.Tasks[i]
		t.Updates = append(t.Updates, model.TaskUpdate{
			Message:   message,
			Author:    actor.Label(),
			Timestamp: now,
		})
		t.UpdatedAt = now
		updated = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, p, actor, events.TaskUpdated, events.LevelInfo,
		"Task progress", fmt.Sprintf("%s: %s", updated.ID, message),
		map[string]string{"taskId": updated.ID})
	return &updated, nil
}
