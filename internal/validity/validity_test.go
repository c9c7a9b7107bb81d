package validity

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestDaysUntil(t *testing.T) {
	asOf := time.Date(2025, 6, 15, 23, 50, 0, 0, time.UTC)

	cases := []struct {
		name string
		exp  time.Time
		want int
	}{
		{"same day late evening", date(2025, 6, 15), 0},
		{"tomorrow", date(2025, 6, 16), 1},
		{"next month", date(2025, 7, 15), 30},
		{"already past", date(2025, 6, 1), 0},
	}
	for _, c := range cases {
		if got := DaysUntil(c.exp, asOf); got != c.want {
			t.Fatalf("%s: DaysUntil=%d want %d", c.name, got, c.want)
		}
	}
}

func TestIsExpired(t *testing.T) {
	asOf := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

	if IsExpired(nil, asOf) {
		t.Fatalf("no expiry date means never expired")
	}
	if IsExpired(ptr(date(2025, 6, 15)), asOf) {
		t.Fatalf("not expired on the expiry day itself")
	}
	if !IsExpired(ptr(date(2025, 6, 14)), asOf) {
		t.Fatalf("yesterday's date is expired")
	}
}

func TestIsExpiringSoon(t *testing.T) {
	asOf := date(2025, 6, 15)

	if !IsExpiringSoon(ptr(date(2025, 7, 10)), DefaultWindowDays, asOf) {
		t.Fatalf("25 days out is within the 30-day window")
	}
	if IsExpiringSoon(ptr(date(2025, 8, 1)), DefaultWindowDays, asOf) {
		t.Fatalf("47 days out is beyond the window")
	}
	if IsExpiringSoon(ptr(date(2025, 6, 1)), DefaultWindowDays, asOf) {
		t.Fatalf("an expired date is not expiring soon")
	}
	if IsExpiringSoon(nil, DefaultWindowDays, asOf) {
		t.Fatalf("no expiry date is never expiring soon")
	}
}

func TestKindWindows(t *testing.T) {
	if WindowDays(KindComplianceEvent) != ComplianceWindowDays {
		t.Fatalf("compliance events use the tight window")
	}
	if WindowDays(KindDocument) != DefaultWindowDays || WindowDays(KindLeaseContract) != DefaultWindowDays {
		t.Fatalf("other kinds use the default window")
	}
}

func TestEngineCheck(t *testing.T) {
	now := date(2025, 6, 15)
	e := NewEngine(func() time.Time { return now })

	rep := e.Check(KindComplianceEvent, ptr(date(2025, 6, 20)))
	if rep.IsExpired || !rep.IsExpiringSoon || rep.DaysUntil != 5 {
		t.Fatalf("unexpected report %+v", rep)
	}

	rep = e.Check(KindDocument, ptr(date(2025, 6, 20)))
	if !rep.IsExpiringSoon {
		t.Fatalf("5 days out is within the document window")
	}

	rep = e.Check(KindDocument, nil)
	if rep.IsExpired || rep.IsExpiringSoon || rep.DaysUntil != 0 {
		t.Fatalf("nil expiry yields a clean report, got %+v", rep)
	}
}

func TestDerivedOverdue(t *testing.T) {
	asOf := date(2025, 6, 15)
	due := date(2025, 6, 10)

	ev := ComplianceEvent{Status: StatusPending, DueDate: &due}
	if !ev.IsOverdue(asOf) {
		t.Fatalf("pending event past due is overdue")
	}
	ev.Status = StatusCompleted
	if ev.IsOverdue(asOf) {
		t.Fatalf("completed event is never overdue")
	}

	p := PaymentSchedule{Status: StatusPending, DueDate: &due, AmountDue: 5000}
	if !p.IsOverdue(asOf) {
		t.Fatalf("pending payment past due is overdue")
	}
	p.Status = StatusCancelled
	if p.IsOverdue(asOf) {
		t.Fatalf("cancelled payment is never overdue")
	}
}
