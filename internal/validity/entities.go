package validity

import "time"

// Temporal-validity entities share one status vocabulary. "overdue" is a
// derived property of a pending item whose date has passed; it is only
// persisted when an operator explicitly transitions the record.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

// ComplianceEvent is a dated obligation on a vehicle or driver (inspection,
// permit renewal, work order).
type ComplianceEvent struct {
	ID          string     `json:"id"`
	VehicleID   string     `json:"vehicle_id,omitempty"`
	DriverID    string     `json:"driver_id,omitempty"`
	EventType   string     `json:"event_type"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsOverdue derives the overdue flag without mutating status.
func (c ComplianceEvent) IsOverdue(asOf time.Time) bool {
	return c.Status == StatusPending && IsExpired(c.DueDate, asOf)
}

// LeaseContract ties a vehicle to a lessee for a term.
type LeaseContract struct {
	ID         string     `json:"id"`
	VehicleID  string     `json:"vehicle_id"`
	LesseeID   string     `json:"lessee_id"`
	StartDate  time.Time  `json:"start_date"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Status     string     `json:"status"`
}

// PaymentSchedule is one expected payment under a contract.
type PaymentSchedule struct {
	ID         string     `json:"id"`
	ContractID string     `json:"contract_id"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	AmountDue  int64      `json:"amount_due"`
	Status     string     `json:"status"`
}

// IsOverdue derives the overdue flag for a pending payment.
func (p PaymentSchedule) IsOverdue(asOf time.Time) bool {
	return p.Status == StatusPending && IsExpired(p.DueDate, asOf)
}
