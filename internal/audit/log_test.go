package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	obs.Logger().SetOutput(&buf)
	t.Cleanup(func() { obs.Logger().SetOutput(os.Stdout) })
	return &buf
}

func TestLogEventCarriesActorContext(t *testing.T) {
	buf := captureLog(t)

	ctx := auth.ContextWithUser(context.Background(), "user-7", []string{"manager"})
	ctx = WithRequestID(ctx, "req-42")
	if err := LogEvent(ctx, "settlement.issued", map[string]any{"settlement_id": "stl-1"}); err != nil {
		t.Fatal(err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v (%s)", err, buf.String())
	}
	if entry["event"] != "settlement.issued" || entry["entity"] != "settlement" {
		t.Fatalf("event fields wrong: %+v", entry)
	}
	if entry["actor_id"] != "user-7" || entry["request_id"] != "req-42" {
		t.Fatalf("actor context missing: %+v", entry)
	}
	roles, ok := entry["actor_roles"].([]any)
	if !ok || len(roles) != 1 || roles[0] != "manager" {
		t.Fatalf("actor roles missing: %+v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["settlement_id"] != "stl-1" {
		t.Fatalf("domain fields missing: %+v", entry)
	}
}

func TestLogEventWithoutActor(t *testing.T) {
	buf := captureLog(t)

	if err := LogEvent(context.Background(), "trip.created", nil); err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if _, present := entry["actor_id"]; present {
		t.Fatalf("anonymous entry must omit actor: %+v", entry)
	}
	if _, present := entry["actor_roles"]; present {
		t.Fatalf("anonymous entry must omit roles: %+v", entry)
	}
	if entry["entity"] != "trip" {
		t.Fatalf("entity segment missing: %+v", entry)
	}

	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("blank event name must error")
	}
}
