package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nexus/internal/model"
	"nexus/internal/service"
	"nexus/pkg/rbac"
)

func (s *Service) CreateFunctional(ctx context.Context, actor service.Actor, projectID string, in model.FunctionalRequirement) (*model.FunctionalRequirement, error) {
	in.ID = uuid.NewString()
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = "proposed"
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		p.FunctionalRequirements = append(p.FunctionalRequirements, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) UpdateFunctional(ctx context.Context, actor service.Actor, projectID, reqID string, in model.FunctionalRequirement) (*model.FunctionalRequirement, error) {
	in.ID = reqID
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		for i := range p.FunctionalRequirements {
			if p.FunctionalRequirements[i].ID == reqID {
				if in.Status == "" {
					in.Status = p.FunctionalRequirements[i].Status
				}
				p.FunctionalRequirements[i] = in
				return nil
			}
		}
		return fmt.Errorf("requirement %s: %w", reqID, model.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) DeleteFunctional(ctx context.Context, actor service.Actor, projectID, reqID string) error {
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		for i := range p.FunctionalRequirements {
			if p.FunctionalRequirements[i].ID == reqID {
				p.FunctionalRequirements = append(p.FunctionalRequirements[:i], p.FunctionalRequirements[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("requirement %s: %w", reqID, model.ErrNotFound)
	})
	return err
}

func (s *Service) CreateNonFunctional(ctx context.Context, actor service.Actor, projectID string, in model.NonFunctionalRequirement) (*model.NonFunctionalRequirement, error) {
	in.ID = uuid.NewString()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		p.NonFunctionalRequirements = append(p.NonFunctionalRequirements, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) UpdateNonFunctional(ctx context.Context, actor service.Actor, projectID, reqID string, in model.NonFunctionalRequirement) (*model.NonFunctionalRequirement, error) {
	in.ID = reqID
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		for i := range p.NonFunctionalRequirements {
			if p.NonFunctionalRequirements[i].ID == reqID {
				p.NonFunctionalRequirements[i] = in
				return nil
			}
		}
		return fmt.Errorf("requirement %s: %w", reqID, model.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) DeleteNonFunctional(ctx context.Context, actor service.Actor, projectID, reqID string) error {
	_, err := s.mutate(ctx, actor, projectID, rbac.PermissionWriteRequirement, func(p *model.Project) error {
		for i := range p.NonFunctionalRequirements {
			if p.NonFunctionalRequirements[i].ID == reqID {
				p.NonFunctionalRequirements = append(p.NonFunctionalRequirements[:i], p.NonFunctionalRequirements[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("requirement %s: %w", reqID, model.ErrNotFound)
	})
	return err
}
