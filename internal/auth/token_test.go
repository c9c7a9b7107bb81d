package auth

import (
	"strings"
	"testing"
	"time"
)

func setSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseToken(t *testing.T) {
	setSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-1", []string{"Driver", "driver", "dispatcher"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles should be deduped and lower-cased, got %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("token must carry a jti")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	setSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-1", nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseAndValidate(tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	setSecret(t, "secret-a")
	token, err := GenerateToken("user-1", nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	setSecret(t, "secret-b")
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateTokenRequiresConfig(t *testing.T) {
	setSecret(t, "")

	if _, err := GenerateToken("user-1", nil, time.Minute); err == nil {
		t.Fatalf("expected error without configured secret")
	}
	if _, err := GenerateToken("", nil, time.Minute); err == nil || !strings.Contains(err.Error(), "userID") {
		t.Fatalf("expected userID error, got %v", err)
	}
}
