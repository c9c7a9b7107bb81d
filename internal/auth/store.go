package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the RBAC subsystem.
// Implementations must keep the junction uniqueness invariants: at most one
// UserRole per (user_id, role_id) and one RolePermission per
// (role_id, permission_id).
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserStatus(ctx context.Context, id, status string) (*User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByCode(ctx context.Context, code string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRoleDescription(ctx context.Context, id, description string) error

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id string) (*Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (*Permission, error)

	// AssignRole is idempotent: re-assigning an existing pair is a no-op.
	AssignRole(ctx context.Context, ur UserRole) error
	// RevokeRole is idempotent: revoking a missing pair is a no-op.
	RevokeRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]UserRole, error)

	// GrantPermission is idempotent on the (role_id, permission_id) pair.
	GrantPermission(ctx context.Context, rp RolePermission) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
}
