// Package validity centralizes expiry and renewal-window computations shared
// by documents, contracts, assignments and compliance events. Routing every
// "is X overdue" check through one engine keeps threshold changes uniform
// instead of re-deriving day math per entity.
package validity

import "time"

// Kind identifies the entity family a date belongs to. Windows are resolved
// per kind so compliance alerting can run tighter than document renewals.
type Kind string

const (
	KindDocument        Kind = "document"
	KindVehicleDocument Kind = "vehicle_document"
	KindLeaseContract   Kind = "lease_contract"
	KindComplianceEvent Kind = "compliance_event"
	KindAssignment      Kind = "assignment"
	KindPaymentSchedule Kind = "payment_schedule"
)

// DefaultWindowDays is the expiring-soon horizon unless a kind overrides it.
const DefaultWindowDays = 30

// ComplianceWindowDays is the tighter horizon for upcoming compliance work.
const ComplianceWindowDays = 7

// WindowDays returns the expiring-soon window for the kind.
func WindowDays(kind Kind) int {
	if kind == KindComplianceEvent {
		return ComplianceWindowDays
	}
	return DefaultWindowDays
}

// Report is the answer to a validity check.
type Report struct {
	IsExpired      bool `json:"is_expired"`
	IsExpiringSoon bool `json:"is_expiring_soon"`
	DaysUntil      int  `json:"days_until"`
}

// Engine evaluates validity questions against an injectable clock.
type Engine struct {
	nowFn func() time.Time
}

// NewEngine constructs an Engine. A nil clock falls back to UTC wall time.
func NewEngine(nowFn func() time.Time) *Engine {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{nowFn: nowFn}
}

// Now exposes the engine's clock so callers share one time source.
func (e *Engine) Now() time.Time { return e.nowFn() }

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns whole days from asOf to date, floored to start-of-day
// granularity and never negative. Callers needing overdue magnitude check
// IsExpired separately and compute the difference themselves.
func DaysUntil(date, asOf time.Time) int {
	d := int(startOfDay(date).Sub(startOfDay(asOf)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether expiry has passed as of asOf. An entity with no
// expiry date is never expired. An entity is not expired on its expiry day.
func IsExpired(expiry *time.Time, asOf time.Time) bool {
	if expiry == nil {
		return false
	}
	return startOfDay(*expiry).Before(startOfDay(asOf))
}

// IsExpiringSoon reports whether expiry falls within windowDays of asOf.
// Already-expired entities are not "expiring soon"; entities without an
// expiry date never are.
func IsExpiringSoon(expiry *time.Time, windowDays int, asOf time.Time) bool {
	if expiry == nil || IsExpired(expiry, asOf) {
		return false
	}
	return DaysUntil(*expiry, asOf) <= windowDays
}

// Check evaluates the kind's policy window against the engine clock.
func (e *Engine) Check(kind Kind, expiry *time.Time) Report {
	return e.CheckAt(kind, expiry, e.nowFn())
}

// CheckAt evaluates with an explicit asOf instant.
func (e *Engine) CheckAt(kind Kind, expiry *time.Time, asOf time.Time) Report {
	rep := Report{
		IsExpired:      IsExpired(expiry, asOf),
		IsExpiringSoon: IsExpiringSoon(expiry, WindowDays(kind), asOf),
	}
	if expiry != nil {
		rep.DaysUntil = DaysUntil(*expiry, asOf)
	}
	return rep
}
