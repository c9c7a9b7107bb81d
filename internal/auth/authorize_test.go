package auth

import (
	"context"
	"testing"
)

func seededService(t *testing.T) (*Service, *Authorizer, Store) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store, WithActivateOnSignup())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatal(err)
	}
	authz, err := NewAuthorizer(store)
	if err != nil {
		t.Fatal(err)
	}
	return svc, authz, store
}

func grantBuiltinRole(t *testing.T, svc *Service, store Store, userID, roleCode string) {
	t.Helper()
	role, err := store.GetRoleByCode(context.Background(), roleCode)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.GrantRole(context.Background(), userID, role.ID); err != nil {
		t.Fatal(err)
	}
}

func TestDriverRoleScopesPermissions(t *testing.T) {
	svc, authz, store := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "jdoe", "jdoe@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	grantBuiltinRole(t, svc, store, u.ID, RoleDriver)

	if !authz.Authorize(ctx, u.ID, PermTripsRead) {
		t.Fatalf("driver should read trips")
	}
	if authz.Authorize(ctx, u.ID, PermTripsCreate) {
		t.Fatalf("driver must not create trips")
	}
	if authz.Authorize(ctx, u.ID, PermSettlementsIssue) {
		t.Fatalf("driver must not issue settlements")
	}
}

func TestSuspendedUserDeniedDespiteGrants(t *testing.T) {
	svc, authz, store := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "adm", "adm@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	grantBuiltinRole(t, svc, store, u.ID, RoleAdmin)

	if !authz.Authorize(ctx, u.ID, PermManageUsers) {
		t.Fatalf("active admin should pass")
	}
	if _, err := svc.SetUserStatus(ctx, u.ID, UserStatusSuspended); err != nil {
		t.Fatal(err)
	}
	if authz.Authorize(ctx, u.ID, PermManageUsers) {
		t.Fatalf("suspended account must be denied regardless of grants")
	}
}

func TestZeroRolesMeansZeroPermissions(t *testing.T) {
	svc, authz, _ := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "nobody", "nobody@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range BuiltinPermissions {
		if authz.Authorize(ctx, u.ID, p.Code) {
			t.Fatalf("user without roles passed %s", p.Code)
		}
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	_, authz, _ := seededService(t)
	ctx := context.Background()

	if authz.Authorize(ctx, "missing-user", PermTripsRead) {
		t.Fatalf("unknown user must be denied")
	}
	if authz.Authorize(ctx, "", PermTripsRead) {
		t.Fatalf("empty user id must be denied")
	}
	if authz.Authorize(ctx, "missing-user", "") {
		t.Fatalf("empty permission code must be denied")
	}
	if authz.Authorize(ctx, "missing-user", "no.such.permission") {
		t.Fatalf("unknown permission code must be denied, not an error")
	}
}

func TestPrincipalSnapshot(t *testing.T) {
	svc, authz, store := seededService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "disp", "disp@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	grantBuiltinRole(t, svc, store, u.ID, RoleDispatcher)

	p, err := authz.BuildPrincipal(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasPermission(PermTripsTransition) {
		t.Fatalf("dispatcher principal should transition trips")
	}
	if p.HasPermission(PermEscrowPost) {
		t.Fatalf("dispatcher principal must not post escrow")
	}

	// The snapshot denies once the embedded user is no longer active.
	p.User.Status = UserStatusInactive
	if p.HasPermission(PermTripsTransition) {
		t.Fatalf("inactive principal must be denied")
	}
}
