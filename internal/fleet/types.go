package fleet

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("fleet: not found")
	ErrInvalidInput = errors.New("fleet: invalid input")
)

// TripStatus is the trip lifecycle state.
type TripStatus string

const (
	TripPlanned   TripStatus = "planned"
	TripLoaded    TripStatus = "loaded"
	TripInTransit TripStatus = "in_transit"
	TripDelivered TripStatus = "delivered"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// IsTerminal reports whether the status has no outbound transitions.
func (s TripStatus) IsTerminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// ValidTripStatus reports whether s is a known lifecycle state.
func ValidTripStatus(s TripStatus) bool {
	switch s {
	case TripPlanned, TripLoaded, TripInTransit, TripDelivered, TripCompleted, TripCancelled:
		return true
	}
	return false
}

// InvalidTransitionError reports a rejected lifecycle transition with the
// current and attempted states.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("fleet: invalid %s transition %s -> %s: %s", e.Entity, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("fleet: invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// ErrInvalidTransition matches any InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("fleet: invalid transition")

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Trip is one revenue movement of a vehicle by a driver.
type Trip struct {
	ID            string     `json:"id"`
	VehicleID     string     `json:"vehicle_id"`
	DriverUserID  string     `json:"driver_user_id"`
	PlannedStart  time.Time  `json:"planned_start_at"`
	ActualStartAt *time.Time `json:"actual_start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Status        TripStatus `json:"status"`
	OriginCity    string     `json:"origin_city,omitempty"`
	OriginState   string     `json:"origin_state,omitempty"`
	DestCity      string     `json:"dest_city,omitempty"`
	DestState     string     `json:"dest_state,omitempty"`
	DistanceMiles float64    `json:"distance_miles,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StopType classifies a trip stop.
type StopType string

const (
	StopPickup     StopType = "pickup"
	StopDrop       StopType = "drop"
	StopFuel       StopType = "fuel"
	StopRest       StopType = "rest"
	StopInspection StopType = "inspection"
	StopBreakdown  StopType = "breakdown"
)

// ValidStopType reports whether t is a known stop type.
func ValidStopType(t StopType) bool {
	switch t {
	case StopPickup, StopDrop, StopFuel, StopRest, StopInspection, StopBreakdown:
		return true
	}
	return false
}

// TripStop is an ordered stop within a trip. A stop is complete once its
// timestamp is set.
type TripStop struct {
	ID           string     `json:"id"`
	TripID       string     `json:"trip_id"`
	StopSequence int        `json:"stop_sequence"`
	StopType     StopType   `json:"stop_type"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Lat          *float64   `json:"lat,omitempty"`
	Lon          *float64   `json:"lon,omitempty"`
}

// Completed reports whether the stop has been reached.
func (s TripStop) Completed() bool { return s.Timestamp != nil }

// TripMetrics is the fuel/mileage reconciliation required before a delivered
// trip can complete.
type TripMetrics struct {
	TripID       string    `json:"trip_id"`
	MilesDriven  float64   `json:"miles_driven"`
	FuelGallons  float64   `json:"fuel_gallons"`
	ReconciledAt time.Time `json:"reconciled_at"`
}

// VehicleStatus is the vehicle availability state.
type VehicleStatus string

const (
	VehicleActive        VehicleStatus = "active"
	VehicleInTransit     VehicleStatus = "in_transit"
	VehicleInMaintenance VehicleStatus = "in_maintenance"
	VehicleOutOfService  VehicleStatus = "out_of_service"
	VehicleAtYard        VehicleStatus = "at_yard"
)

// IsOperational reports whether the vehicle can be dispatched.
func (s VehicleStatus) IsOperational() bool {
	return s == VehicleActive || s == VehicleInTransit
}

// Vehicle is one unit in the fleet.
type Vehicle struct {
	ID             string        `json:"id"`
	UnitNumber     string        `json:"unit_number"`
	VIN            string        `json:"vin"`
	Status         VehicleStatus `json:"status"`
	CurrentMileage int64         `json:"current_mileage"`
	LastServiceAt  *time.Time    `json:"last_service_at,omitempty"`
}

// Assignment links a vehicle, a contract and a driver for a date range.
type Assignment struct {
	ID           string     `json:"id"`
	VehicleID    string     `json:"vehicle_id"`
	ContractID   string     `json:"contract_id"`
	DriverUserID string     `json:"driver_user_id"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Status       string     `json:"status"`
}

const (
	AssignmentActive = "active"
	AssignmentEnded  = "ended"
)

// ActiveAt reports whether the assignment covers the instant t: status is
// active and t lies within [StartDate, EndDate-or-infinity).
func (a Assignment) ActiveAt(t time.Time) bool {
	if a.Status != AssignmentActive {
		return false
	}
	if t.Before(a.StartDate) {
		return false
	}
	if a.EndDate != nil && !t.Before(*a.EndDate) {
		return false
	}
	return true
}
