package service

import (
	"fmt"

	"nexus/internal/model"
	"nexus/pkg/rbac"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Email  string
	Name   string
}

// Label is a display name for notifications.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// RoleFor resolves the caller's role on p.
func RoleFor(p *model.Project, a Actor) string {
	switch {
	case p.IsOwner(a.UserID):
		return rbac.RoleOwner
	case p.IsMember(a.UserID, a.Email):
		return rbac.RoleMember
	default:
		return rbac.RoleNone
	}
}

// Authorize checks permission on p. Callers with no role at all get
// ErrNotFound so project ids are not disclosed; members lacking the
// permission get ErrForbidden.
func Authorize(p *model.Project, a Actor, permission string) error {
	role := RoleFor(p, a)
	if role == rbac.RoleNone {
		return fmt.Errorf("project %s: %w", p.ID, model.ErrNotFound)
	}
	if err := rbac.CheckPermission(a.UserID, role, permission); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), model.ErrForbidden)
	}
	return nil
}
