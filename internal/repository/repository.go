package repository

import (
	"context"

	"nexus/internal/model"
)

// ProjectStore persists Project aggregates. Save is an optimistic write: it
// succeeds only when p.Version still matches the stored version, and bumps
// p.Version on success. A stale write returns model.ErrVersionConflict.
type ProjectStore interface {
	Create(ctx context.Context, p *model.Project) error
	Get(ctx context.Context, id string) (*model.Project, error)
	ListForUser(ctx context.Context, userID, email string) ([]*model.Project, error)
	FindByRepo(ctx context.Context, owner, name string) ([]*model.Project, error)
	Save(ctx context.Context, p *model.Project) error
	// SaveBrief stores the executive brief without touching version or updatedAt.
	SaveBrief(ctx context.Context, id string, brief model.ExecutiveBrief) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// UserStore persists users. Emails are stored lower-cased and are unique;
// Create returns model.ErrConflict for a taken email.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, u *model.User) error
}
