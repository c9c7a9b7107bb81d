package auth

import (
	"context"
	"database/sql"
	"time"

	"fleetcore.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, phone, status, password_hash, biometric_id_ref)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.Phone, u.Status, u.PasswordHash, u.BiometricIDRef,
	)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u         User
		phone     sql.NullString
		bioRef    sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &phone, &u.Status,
		&u.PasswordHash, &bioRef, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Phone = phone.String
	u.BiometricIDRef = bioRef.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

const userColumns = `id, username, email, phone, status, password_hash, biometric_id_ref, last_login_at, created_at, updated_at`

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) UpdateUserStatus(ctx context.Context, id, status string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`update users set status=$2, updated_at=now() where id=$1
		 returning `+userColumns, id, status)
	return scanUser(row)
}

func (s *PGStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2 where id=$1`, id, at)
	return err
}

func (s *PGStore) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, code, name, description) values($1,$2,$3,$4)`,
		role.ID, role.Code, role.Name, role.Description,
	)
	return err
}

func scanRole(row interface{ Scan(...any) error }) (*Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *PGStore) GetRole(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, name, description, created_at from roles where id=$1`, id)
	return scanRole(row)
}

func (s *PGStore) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, name, description, created_at from roles where code=$1`, code)
	return scanRole(row)
}

func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, code, name, description, created_at from roles order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGStore) UpdateRoleDescription(ctx context.Context, id, description string) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set description=$2 where id=$1`, id, description)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, code, name, description)
			 values($1,$2,$3,$4) on conflict (code) do nothing`,
			p.ID, p.Code, p.Name, p.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, code, name, description from permissions order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func scanPermission(row interface{ Scan(...any) error }) (*Permission, error) {
	var p Permission
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) GetPermission(ctx context.Context, id string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, name, description from permissions where id=$1`, id)
	return scanPermission(row)
}

func (s *PGStore) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, name, description from permissions where code=$1`, code)
	return scanPermission(row)
}

func (s *PGStore) AssignRole(ctx context.Context, ur UserRole) error {
	if ur.ID == "" {
		ur.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(id, user_id, role_id, assigned_at)
		 values($1,$2,$3,$4) on conflict (user_id, role_id) do nothing`,
		ur.ID, ur.UserID, ur.RoleID, ur.AssignedAt,
	)
	return err
}

func (s *PGStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2`, userID, roleID)
	return err
}

func (s *PGStore) RolesForUser(ctx context.Context, userID string) ([]UserRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, role_id, assigned_at from user_roles where user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedAt); err != nil {
			return nil, err
		}
		result = append(result, ur)
	}
	return result, rows.Err()
}

func (s *PGStore) GrantPermission(ctx context.Context, rp RolePermission) error {
	if rp.ID == "" {
		rp.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into role_permissions(id, role_id, permission_id)
		 values($1,$2,$3) on conflict (role_id, permission_id) do nothing`,
		rp.ID, rp.RoleID, rp.PermissionID,
	)
	return err
}

func (s *PGStore) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from role_permissions where role_id=$1 and permission_id=$2`,
		roleID, permissionID)
	return err
}

func (s *PGStore) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.code, p.name, p.description from permissions p
		 join role_permissions rp on rp.permission_id=p.id
		 where rp.role_id=$1 order by p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGStore) PermissionsForUser(ctx context.Context, userID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select distinct p.id, p.code, p.name, p.description from permissions p
		 join role_permissions rp on rp.permission_id=p.id
		 join user_roles ur on ur.role_id=rp.role_id
		 where ur.user_id=$1 order by p.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
