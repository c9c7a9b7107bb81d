package auth

import "time"

// User statuses. Only an active account passes authorization; the remaining
// statuses are soft-disable states driven by admins or sign-up policy.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
	UserStatusPending   = "pending"
)

// ValidUserStatus reports whether s is one of the known account statuses.
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusPending:
		return true
	}
	return false
}

// User represents a driver, dispatcher or back-office account.
// Accounts are never deleted; they are soft-disabled via status.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	Status         string     `json:"status"`
	PasswordHash   string     `json:"-"`
	BiometricIDRef string     `json:"biometric_id_ref,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Role groups permissions. Immutable after creation except the description.
type Role struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a fine-grained capability. The dotted code, not the ID, is
// the stable identity used in authorization checks.
type Permission struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UserRole is the junction giving a user a role. At most one row exists per
// (user_id, role_id) pair; grants are indefinite until revoked.
type UserRole struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// RolePermission is the junction defining a static grant. At most one row
// exists per (role_id, permission_id) pair.
type RolePermission struct {
	ID           string `json:"id"`
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}
