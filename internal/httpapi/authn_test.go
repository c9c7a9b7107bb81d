package httpapi

import (
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"  Bearer   spaced  ", "spaced", true},
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer ", "", false},
	}
	for _, c := range cases {
		got, err := extractBearerToken(c.header)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("header %q: got %q err %v", c.header, got, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("header %q: expected error", c.header)
		}
	}
}

func TestPublicPaths(t *testing.T) {
	for _, p := range []string{"/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token", "/"} {
		if !isPublicPath(p) {
			t.Fatalf("%s should be public", p)
		}
	}
	for _, p := range []string{"/v1/trips", "/v1/users", "/v1/settlements/x/issue"} {
		if isPublicPath(p) {
			t.Fatalf("%s should require auth", p)
		}
	}
}
