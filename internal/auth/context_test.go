package auth

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, "user-7", []string{"Driver", "driver", "dispatcher"})

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "driver") || !HasRole(ctx, "Dispatcher") {
		t.Fatalf("HasRole missing expected roles: %v", roles)
	}
	if HasRole(ctx, "manager") {
		t.Fatalf("unexpected role found")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	u := &User{ID: "u1", Status: UserStatusActive}
	p := NewPrincipal(u, nil, []Permission{{Code: PermTripsRead}})

	ctx := ContextWithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatalf("principal missing from context")
	}
	if !got.HasPermission(PermTripsRead) {
		t.Fatalf("principal lost permissions in transit")
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("empty context must not yield a principal")
	}
}
