package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fleetcore.org/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety.
// It backs tests and DSN-less deployments; Postgres is the durable option.
type InMemory struct {
	mu        sync.RWMutex
	users     map[string]*User
	roles     map[string]*Role
	perms     map[string]*Permission
	userRoles map[string]UserRole       // key: userID+"/"+roleID
	grants    map[string]RolePermission // key: roleID+"/"+permissionID
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:     make(map[string]*User),
		roles:     make(map[string]*Role),
		perms:     make(map[string]*Permission),
		userRoles: make(map[string]UserRole),
		grants:    make(map[string]RolePermission),
	}
}

func pairKey(a, b string) string { return a + "/" + b }

func (s *InMemory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) UpdateUserStatus(ctx context.Context, id, status string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (s *InMemory) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

func (s *InMemory) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	if _, ok := s.roles[role.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.roles {
		if existing.Code == role.Code {
			return ErrAlreadyExists
		}
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *InMemory) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (s *InMemory) UpdateRoleDescription(ctx context.Context, id, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return ErrNotFound
	}
	r.Description = description
	return nil
}

func (s *InMemory) EnsurePermissions(ctx context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if s.findPermByCode(p.Code) != nil {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		cp := p
		s.perms[p.ID] = &cp
	}
	return nil
}

func (s *InMemory) findPermByCode(code string) *Permission {
	for _, p := range s.perms {
		if p.Code == code {
			return p
		}
	}
	return nil
}

func (s *InMemory) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (s *InMemory) GetPermission(ctx context.Context, id string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.findPermByCode(code)
	if p == nil {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) AssignRole(ctx context.Context, ur UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(ur.UserID, ur.RoleID)
	if _, ok := s.userRoles[key]; ok {
		return nil
	}
	if ur.ID == "" {
		ur.ID = ids.New()
	}
	s.userRoles[key] = ur
	return nil
}

func (s *InMemory) RevokeRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles, pairKey(userID, roleID))
	return nil
}

func (s *InMemory) RolesForUser(ctx context.Context, userID string) ([]UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []UserRole
	for _, ur := range s.userRoles {
		if ur.UserID == userID {
			res = append(res, ur)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RoleID < res[j].RoleID })
	return res, nil
}

func (s *InMemory) GrantPermission(ctx context.Context, rp RolePermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(rp.RoleID, rp.PermissionID)
	if _, ok := s.grants[key]; ok {
		return nil
	}
	if rp.ID == "" {
		rp.ID = ids.New()
	}
	s.grants[key] = rp
	return nil
}

func (s *InMemory) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, pairKey(roleID, permissionID))
	return nil
}

func (s *InMemory) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Permission
	for _, rp := range s.grants {
		if rp.RoleID != roleID {
			continue
		}
		if p, ok := s.perms[rp.PermissionID]; ok {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (s *InMemory) PermissionsForUser(ctx context.Context, userID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var res []Permission
	for _, ur := range s.userRoles {
		if ur.UserID != userID {
			continue
		}
		for _, rp := range s.grants {
			if rp.RoleID != ur.RoleID {
				continue
			}
			p, ok := s.perms[rp.PermissionID]
			if !ok {
				continue
			}
			if _, dup := seen[p.Code]; dup {
				continue
			}
			seen[p.Code] = struct{}{}
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}
