package auth

import (
	"context"
	"errors"
	"testing"
)

func TestGrantRoleIdempotent(t *testing.T) {
	svc, _, store := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	role, err := store.GetRoleByCode(ctx, RoleDriver)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantRole(ctx, u.ID, role.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantRole(ctx, u.ID, role.ID); err != nil {
		t.Fatalf("double grant must be a no-op success, got %v", err)
	}
	assignments, err := store.RolesForUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected one assignment, got %d", len(assignments))
	}
}

func TestRevokeRoleIsNoOpWhenAbsent(t *testing.T) {
	svc, _, store := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	role, err := store.GetRoleByCode(ctx, RoleManager)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RevokeRole(ctx, u.ID, role.ID); err != nil {
		t.Fatalf("revoking an absent grant must succeed, got %v", err)
	}
}

func TestGrantRoleUnknownRole(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantRole(ctx, u.ID, "no-such-role"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestGrantPermissionOutsideCatalog(t *testing.T) {
	svc, _, store := seededService(t)
	ctx := context.Background()

	role, err := store.GetRoleByCode(ctx, RoleDriver)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantPermissionByCode(ctx, role.ID, "fleet.selfdestruct"); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestGrantPermissionIdempotent(t *testing.T) {
	svc, _, store := seededService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "Auditor", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantPermissionByCode(ctx, role.ID, PermDocumentsRead); err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantPermissionByCode(ctx, role.ID, PermDocumentsRead); err != nil {
		t.Fatalf("double grant must be a no-op success, got %v", err)
	}
	perms, err := store.PermissionsForRole(ctx, role.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected one grant, got %d", len(perms))
	}
}

func TestRegisterUserPendingByDefault(t *testing.T) {
	store := NewInMemory()
	svc, err := NewService(store)
	if err != nil {
		t.Fatal(err)
	}
	u, err := svc.RegisterUser(context.Background(), "newbie", "newbie@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if u.Status != UserStatusPending {
		t.Fatalf("expected pending status, got %s", u.Status)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Authenticate(ctx, "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user")
	}

	if _, err := svc.Authenticate(ctx, "jdoe@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost@example.com", "s3cret-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}

	if _, err := svc.SetUserStatus(ctx, u.ID, UserStatusSuspended); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, "jdoe@example.com", "s3cret-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for suspended account, got %v", err)
	}
}

func TestSetUserStatusRejectsUnknown(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetUserStatus(ctx, u.ID, "deleted"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
