package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
	"nexus/pkg/logger"
	"nexus/pkg/rbac"
)

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) int
}

// Service implements project, task, milestone and requirement operations on
// top of a ProjectStore. Every write is an access-checked read-modify-write
// retried on version conflicts.
type Service struct {
	store     repository.ProjectStore
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.ProjectStore, publisher EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type CreateInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	TeamMembers []string   `json:"teamMembers"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	TeamMembers *[]string  `json:"teamMembers"`
}

// List returns the projects the actor owns or belongs to.
func (s *Service) List(ctx context.Context, actor service.Actor) ([]*model.Project, error) {
	projects, err := s.store.ListForUser(ctx, actor.UserID, actor.Email)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		p.RefreshCompletion()
	}
	return projects, nil
}

func (s *Service) Create(ctx context.Context, actor service.Actor, in CreateInput) (*model.Project, error) {
	now := s.now().UTC()
	p := &model.Project{
		ID:                        uuid.NewString(),
		Name:                      strings.TrimSpace(in.Name),
		Description:               in.Description,
		Status:                    in.Status,
		Priority:                  in.Priority,
		StartDate:                 in.StartDate,
		EndDate:                   in.EndDate,
		CreatedBy:                 actor.UserID,
		TeamMembers:               []string{},
		Tasks:                     []model.Task{},
		Milestones:                []model.Milestone{},
		FunctionalRequirements:    []model.FunctionalRequirement{},
		NonFunctionalRequirements: []model.NonFunctionalRequirement{},
		GitHubActivity:            []model.GitHubActivity{},
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	for _, m := range in.TeamMembers {
		p.AddMember(m)
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Project created",
		zap.String("project_id", p.ID),
		zap.String("user_id", actor.UserID),
	)
	s.emit(ctx, p, actor, events.ProjectCreated, events.LevelSuccess,
		"Project created", fmt.Sprintf("%s created project %s", actor.Label(), p.Name), nil)
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor service.Actor, id string) (*model.Project, error) {
	return s.load(ctx, actor, id, rbac.PermissionReadProject)
}

func (s *Service) Update(ctx context.Context, actor service.Actor, id string, in UpdateInput) (*model.Project, error) {
	p, err := s.mutate(ctx, actor, id, rbac.PermissionUpdateProject, func(p *model.Project) error {
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		if in.Priority != nil {
			p.Priority = *in.Priority
		}
		if in.StartDate != nil {
			p.StartDate = in.StartDate
		}
		if in.EndDate != nil {
			p.EndDate = in.EndDate
		}
		if in.TeamMembers != nil {
			p.TeamMembers = []string{}
			for _, m := range *in.TeamMembers {
				p.AddMember(m)
			}
		}
		return p.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, p, actor, events.ProjectUpdated, events.LevelInfo,
		"Project updated", fmt.Sprintf("%s updated project %s", actor.Label(), p.Name), nil)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor service.Actor, id string) error {
	p, err := s.load(ctx, actor, id, rbac.PermissionDeleteProject)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("Project deleted",
		zap.String("project_id", id),
		zap.String("user_id", actor.UserID),
	)
	s.emit(ctx, p, actor, events.ProjectDeleted, events.LevelWarning,
		"Project deleted", fmt.Sprintf("%s deleted project %s", actor.Label(), p.Name), nil)
	return nil
}

func (s *Service) AddMember(ctx context.Context, actor service.Actor, id, member string) (*model.Project, error) {
	if strings.TrimSpace(member) == "" {
		return nil, fmt.Errorf("%w: member is required", model.ErrValidation)
	}
	p, err := s.mutate(ctx, actor, id, rbac.PermissionUpdateProject, func(p *model.Project) error {
		if !p.AddMember(member) {
			return fmt.Errorf("%w: %s is already a member", model.ErrConflict, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, p, actor, events.ProjectUpdated, events.LevelInfo,
		"Member added", fmt.Sprintf("%s joined %s", member, p.Name), nil)
	return p, nil
}

func (s *Service) RemoveMember(ctx context.Context, actor service.Actor, id, member string) (*model.Project, error) {
	p, err := s.mutate(ctx, actor, id, rbac.PermissionUpdateProject, func(p *model.Project) error {
		if !p.RemoveMember(member) {
			return fmt.Errorf("member %s: %w", member, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, p, actor, events.ProjectUpdated, events.LevelInfo,
		"Member removed", fmt.Sprintf("%s left %s", member, p.Name), nil)
	return p, nil
}

// load reads a project and checks permission on it.
func (s *Service) load(ctx context.Context, actor service.Actor, id, permission string) (*model.Project, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := service.Authorize(p, actor, permission); err != nil {
		return nil, err
	}
	p.RefreshCompletion()
	return p, nil
}

// mutate runs fn inside an optimistic read-modify-write after checking
// permission. fn may run more than once.
func (s *Service) mutate(ctx context.Context, actor service.Actor, id, permission string, fn func(p *model.Project) error) (*model.Project, error) {
	p, err := repository.Update(ctx, s.store, id, func(p *model.Project) error {
		if err := service.Authorize(p, actor, permission); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.RefreshCompletion()
	return p, nil
}

func (s *Service) emit(ctx context.Context, p *model.Project, actor service.Actor, name, level, title, message string, data any) {
	e := events.Event{
		Name:        name,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       actor.Label(),
		Title:       title,
		Message:     message,
		Level:       level,
	}
	if data != nil {
		e = e.WithData(data)
	}
	s.publisher.Publish(ctx, e)
}
