package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetcore.org/internal/ids"
)

// Service owns RBAC administration: user registration, role and permission
// grants. Grant and revoke operations are idempotent so that administrative
// tooling may retry safely.
type Service struct {
	store Store
	nowFn func() time.Time
	newID func() string

	// activateOnSignup controls whether new accounts start active or pending.
	activateOnSignup bool
}

// Option configures Service.
type Option func(*Service)

// WithClock injects the time source. Required for deterministic tests.
func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// WithIDGenerator injects the identifier generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithActivateOnSignup makes RegisterUser create accounts in active status
// instead of pending.
func WithActivateOnSignup() Option {
	return func(s *Service) { s.activateOnSignup = true }
}

// NewService constructs the RBAC admin service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	s := &Service{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Seed ensures the closed permission catalog, the builtin roles and their
// default grants exist. Safe to run on every start.
func (s *Service) Seed(ctx context.Context) error {
	if err := s.store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	for _, role := range BuiltinRoles {
		existing, err := s.store.GetRoleByCode(ctx, role.Code)
		if errors.Is(err, ErrNotFound) {
			role.ID = s.newID()
			role.CreatedAt = s.nowFn()
			if err := s.store.CreateRole(ctx, &role); err != nil {
				return fmt.Errorf("seed role %s: %w", role.Code, err)
			}
			existing = &role
		} else if err != nil {
			return err
		}
		for _, code := range BuiltinGrants[role.Code] {
			if err := s.GrantPermissionByCode(ctx, existing.ID, code); err != nil {
				return fmt.Errorf("seed grant %s -> %s: %w", role.Code, code, err)
			}
		}
	}
	return nil
}

// RegisterUser creates an account. Status follows sign-up policy.
func (s *Service) RegisterUser(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	status := UserStatusPending
	if s.activateOnSignup {
		status = UserStatusActive
	}
	now := s.nowFn()
	u := &User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		Status:       status,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetUserStatus drives admin/system account transitions (suspension,
// reactivation, soft-disable). Accounts are never deleted.
func (s *Service) SetUserStatus(ctx context.Context, userID, status string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if !ValidUserStatus(status) {
		return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.store.UpdateUserStatus(ctx, userID, status)
}

// Authenticate verifies credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if u.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	_ = s.store.TouchLastLogin(ctx, u.ID, s.nowFn())
	return u, nil
}

// CreateRole adds a non-builtin role with a unique code.
func (s *Service) CreateRole(ctx context.Context, code, name, description string) (*Role, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("%w: role code and name are required", ErrInvalidInput)
	}
	role := &Role{
		ID:          s.newID(),
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.nowFn(),
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GrantRole assigns a role to a user. Granting an already-granted role is a
// no-op success.
func (s *Service) GrantRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, roleID)
		}
		return err
	}
	return s.store.AssignRole(ctx, UserRole{
		ID:         s.newID(),
		UserID:     userID,
		RoleID:     roleID,
		AssignedAt: s.nowFn(),
	})
}

// RevokeRole removes a role from a user. Revoking a non-existent grant is a
// no-op success.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RevokeRole(ctx, userID, roleID)
}

// GrantPermission links a cataloged permission to a role. The permission
// catalog is closed: an ID that does not resolve to a cataloged code fails
// with ErrUnknownPermission.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	perm, err := s.store.GetPermission(ctx, permissionID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, permissionID)
	}
	if err != nil {
		return err
	}
	if !InCatalog(perm.Code) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, perm.Code)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, roleID)
		}
		return err
	}
	return s.store.GrantPermission(ctx, RolePermission{
		ID:           s.newID(),
		RoleID:       roleID,
		PermissionID: perm.ID,
	})
}

// GrantPermissionByCode resolves the permission code first, then grants it.
func (s *Service) GrantPermissionByCode(ctx context.Context, roleID, code string) error {
	code = strings.TrimSpace(code)
	if !InCatalog(code) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, code)
	}
	perm, err := s.store.GetPermissionByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, code)
	}
	if err != nil {
		return err
	}
	return s.GrantPermission(ctx, roleID, perm.ID)
}

// RevokePermission removes a grant from a role. Idempotent.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	return s.store.RevokePermission(ctx, roleID, permissionID)
}

// RoleCodesForUser resolves the codes of every role the user holds, for
// embedding into tokens.
func (s *Service) RoleCodesForUser(ctx context.Context, userID string) ([]string, error) {
	assignments, err := s.store.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var codes []string
	for _, ur := range assignments {
		role, err := s.store.GetRole(ctx, ur.RoleID)
		if err != nil {
			continue
		}
		codes = append(codes, role.Code)
	}
	return codes, nil
}
