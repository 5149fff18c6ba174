package rbac

import "fmt"

// 权限常量
const (
	PermissionReadProject      = "project:read"
	PermissionUpdateProject    = "project:update"
	PermissionDeleteProject    = "project:delete"
	PermissionWriteTask        = "task:write"
	PermissionWriteMilestone   = "milestone:write"
	PermissionWriteRequirement = "requirement:write"
	PermissionManageGitHub     = "github:manage"
	PermissionReadBrief        = "brief:read"
)

// 角色常量
const (
	RoleOwner  = "owner"
	RoleMember = "member"
	RoleNone   = ""
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleOwner: {
		PermissionReadProject,
		PermissionUpdateProject,
		PermissionDeleteProject,
		PermissionWriteTask,
		PermissionWriteMilestone,
		PermissionWriteRequirement,
		PermissionManageGitHub,
		PermissionReadBrief,
	},
	RoleMember: {
		PermissionReadProject,
		PermissionReadBrief,
	},
}

// HasPermission reports whether role grants permission.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限，返回错误而不是布尔值，便于处理
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	if e.Role == RoleNone {
		return "insufficient permissions"
	}
	return fmt.Sprintf("insufficient permissions: %s cannot %s", e.Role, e.Permission)
}
