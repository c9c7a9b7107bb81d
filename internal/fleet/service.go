package fleet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleetcore.org/internal/ids"
	"fleetcore.org/internal/obs"
)

// Service defines fleet operations.
type Service interface {
	CreateTrip(ctx context.Context, trip Trip) (Trip, error)
	GetTrip(ctx context.Context, id string) (Trip, error)
	AddStop(ctx context.Context, tripID string, stop TripStop) (TripStop, error)
	Stops(ctx context.Context, tripID string) ([]TripStop, error)
	CompleteStop(ctx context.Context, tripID, stopID string) (TripStop, error)
	RecordMetrics(ctx context.Context, m TripMetrics) error
	Metrics(ctx context.Context, tripID string) (TripMetrics, error)
	Transition(ctx context.Context, tripID string, target TripStatus) (Trip, error)

	AddVehicle(ctx context.Context, v Vehicle) (Vehicle, error)
	GetVehicle(ctx context.Context, id string) (Vehicle, error)
	SetVehicleStatus(ctx context.Context, id string, target VehicleStatus) (Vehicle, error)

	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	EndAssignment(ctx context.Context, id string) (Assignment, error)
	ActiveAssignmentForVehicle(ctx context.Context, vehicleID string) (Assignment, bool, error)
}

// InMemory implements Service with in-process concurrency safety. Status
// swaps happen under the lock, so a transition observes the current state
// and replaces it atomically: two racing callers cannot both win the same
// edge.
type InMemory struct {
	mu          sync.RWMutex
	trips       map[string]*Trip
	stops       map[string][]TripStop // tripID -> ordered by StopSequence
	metrics     map[string]TripMetrics
	vehicles    map[string]*Vehicle
	assignments map[string]*Assignment
	nowFn       func() time.Time
	newID       func() string
}

var _ Service = (*InMemory)(nil)

// Option configures InMemory.
type Option func(*InMemory)

// WithClock injects the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(s *InMemory) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// WithIDGenerator injects the identifier generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *InMemory) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewInMemory creates an empty fleet store.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		trips:       make(map[string]*Trip),
		stops:       make(map[string][]TripStop),
		metrics:     make(map[string]TripMetrics),
		vehicles:    make(map[string]*Vehicle),
		assignments: make(map[string]*Assignment),
		nowFn:       func() time.Time { return time.Now().UTC() },
		newID:       ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) CreateTrip(ctx context.Context, trip Trip) (Trip, error) {
	if strings.TrimSpace(trip.VehicleID) == "" || strings.TrimSpace(trip.DriverUserID) == "" {
		return Trip{}, fmt.Errorf("%w: vehicle_id and driver_user_id are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if trip.ID == "" {
		trip.ID = s.newID()
	}
	now := s.nowFn()
	trip.Status = TripPlanned
	trip.ActualStartAt = nil
	trip.EndAt = nil
	trip.CreatedAt = now
	trip.UpdatedAt = now
	cp := trip
	s.trips[trip.ID] = &cp
	return trip, nil
}

func (s *InMemory) GetTrip(ctx context.Context, id string) (Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return Trip{}, ErrNotFound
	}
	return *t, nil
}

func (s *InMemory) AddStop(ctx context.Context, tripID string, stop TripStop) (TripStop, error) {
	if !ValidStopType(stop.StopType) {
		return TripStop{}, fmt.Errorf("%w: unknown stop type %q", ErrInvalidInput, stop.StopType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return TripStop{}, ErrNotFound
	}
	if trip.Status.IsTerminal() {
		return TripStop{}, &InvalidTransitionError{
			Entity: "trip", From: string(trip.Status), To: string(trip.Status),
			Reason: "cannot add stops to a terminal trip",
		}
	}
	if stop.ID == "" {
		stop.ID = s.newID()
	}
	stop.TripID = tripID
	existing := s.stops[tripID]
	if stop.StopSequence == 0 {
		stop.StopSequence = len(existing) + 1
	}
	s.stops[tripID] = append(existing, stop)
	return stop, nil
}

func (s *InMemory) Stops(ctx context.Context, tripID string) ([]TripStop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.trips[tripID]; !ok {
		return nil, ErrNotFound
	}
	src := s.stops[tripID]
	out := make([]TripStop, len(src))
	copy(out, src)
	return out, nil
}

// CompleteStop stamps the stop with the current time.
func (s *InMemory) CompleteStop(ctx context.Context, tripID, stopID string) (TripStop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stops := s.stops[tripID]
	for i := range stops {
		if stops[i].ID == stopID {
			if stops[i].Timestamp == nil {
				now := s.nowFn()
				stops[i].Timestamp = &now
			}
			return stops[i], nil
		}
	}
	return TripStop{}, ErrNotFound
}

func (s *InMemory) RecordMetrics(ctx context.Context, m TripMetrics) error {
	if strings.TrimSpace(m.TripID) == "" {
		return fmt.Errorf("%w: trip_id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[m.TripID]; !ok {
		return ErrNotFound
	}
	if m.ReconciledAt.IsZero() {
		m.ReconciledAt = s.nowFn()
	}
	s.metrics[m.TripID] = m
	return nil
}

func (s *InMemory) Metrics(ctx context.Context, tripID string) (TripMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[tripID]
	if !ok {
		return TripMetrics{}, ErrNotFound
	}
	return m, nil
}

// Transition advances the trip lifecycle. The edge check, the guards and the
// status swap all run under the store lock, which serializes racing callers:
// the loser re-observes the new state and fails the edge check.
func (s *InMemory) Transition(ctx context.Context, tripID string, target TripStatus) (Trip, error) {
	trip, err := s.transition(tripID, target)
	obs.ObserveTripTransition(string(target), err == nil)
	return trip, err
}

func (s *InMemory) transition(tripID string, target TripStatus) (Trip, error) {
	if !ValidTripStatus(target) {
		return Trip{}, fmt.Errorf("%w: unknown trip status %q", ErrInvalidInput, target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return Trip{}, ErrNotFound
	}
	if !tripTransitionAllowed(trip.Status, target) {
		return Trip{}, &InvalidTransitionError{
			Entity: "trip", From: string(trip.Status), To: string(target),
		}
	}

	now := s.nowFn()
	switch target {
	case TripLoaded:
		if !s.hasStopOfType(tripID, StopPickup, false) {
			return Trip{}, &InvalidTransitionError{
				Entity: "trip", From: string(trip.Status), To: string(target),
				Reason: "at least one pickup stop is required",
			}
		}
	case TripInTransit:
		// Setting the actual start is permitted exactly once.
		if trip.ActualStartAt == nil {
			trip.ActualStartAt = &now
		}
	case TripDelivered:
		if !s.hasStopOfType(tripID, StopDrop, true) {
			return Trip{}, &InvalidTransitionError{
				Entity: "trip", From: string(trip.Status), To: string(target),
				Reason: "a completed drop stop is required",
			}
		}
	case TripCompleted:
		if _, ok := s.metrics[tripID]; !ok {
			return Trip{}, &InvalidTransitionError{
				Entity: "trip", From: string(trip.Status), To: string(target),
				Reason: "trip metrics must be reconciled",
			}
		}
	}

	trip.Status = target
	trip.UpdatedAt = now
	// endAt is set exactly once, on entry to a terminal state.
	if target.IsTerminal() && trip.EndAt == nil {
		trip.EndAt = &now
	}
	return *trip, nil
}

func (s *InMemory) hasStopOfType(tripID string, t StopType, completedOnly bool) bool {
	for _, stop := range s.stops[tripID] {
		if stop.StopType != t {
			continue
		}
		if completedOnly && !stop.Completed() {
			continue
		}
		return true
	}
	return false
}

func (s *InMemory) AddVehicle(ctx context.Context, v Vehicle) (Vehicle, error) {
	if strings.TrimSpace(v.UnitNumber) == "" || strings.TrimSpace(v.VIN) == "" {
		return Vehicle{}, fmt.Errorf("%w: unit_number and vin are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.vehicles {
		if existing.UnitNumber == v.UnitNumber || existing.VIN == v.VIN {
			return Vehicle{}, fmt.Errorf("%w: duplicate unit_number or vin", ErrInvalidInput)
		}
	}
	if v.ID == "" {
		v.ID = s.newID()
	}
	if v.Status == "" {
		v.Status = VehicleAtYard
	}
	cp := v
	s.vehicles[v.ID] = &cp
	return v, nil
}

func (s *InMemory) GetVehicle(ctx context.Context, id string) (Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return Vehicle{}, ErrNotFound
	}
	return *v, nil
}

func (s *InMemory) SetVehicleStatus(ctx context.Context, id string, target VehicleStatus) (Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return Vehicle{}, ErrNotFound
	}
	if v.Status == target {
		return *v, nil
	}
	if !vehicleTransitionAllowed(v.Status, target) {
		return Vehicle{}, &InvalidTransitionError{
			Entity: "vehicle", From: string(v.Status), To: string(target),
		}
	}
	if v.Status == VehicleInMaintenance && target != VehicleOutOfService {
		now := s.nowFn()
		v.LastServiceAt = &now
	}
	v.Status = target
	return *v, nil
}

func (s *InMemory) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if strings.TrimSpace(a.VehicleID) == "" || strings.TrimSpace(a.DriverUserID) == "" {
		return Assignment{}, fmt.Errorf("%w: vehicle_id and driver_user_id are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[a.VehicleID]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	if !v.Status.IsOperational() && v.Status != VehicleAtYard {
		return Assignment{}, &InvalidTransitionError{
			Entity: "assignment", From: string(v.Status), To: AssignmentActive,
			Reason: "vehicle is not available for assignment",
		}
	}
	now := s.nowFn()
	for _, existing := range s.assignments {
		if existing.VehicleID == a.VehicleID && existing.ActiveAt(now) {
			return Assignment{}, &InvalidTransitionError{
				Entity: "assignment", From: AssignmentActive, To: AssignmentActive,
				Reason: "vehicle already has an active assignment",
			}
		}
	}
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.StartDate.IsZero() {
		a.StartDate = now
	}
	a.Status = AssignmentActive
	a.EndDate = nil
	cp := a
	s.assignments[a.ID] = &cp
	return a, nil
}

// EndAssignment closes the assignment, setting the end date once.
func (s *InMemory) EndAssignment(ctx context.Context, id string) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	if a.Status == AssignmentEnded {
		return *a, nil
	}
	now := s.nowFn()
	a.Status = AssignmentEnded
	if a.EndDate == nil {
		a.EndDate = &now
	}
	return *a, nil
}

func (s *InMemory) ActiveAssignmentForVehicle(ctx context.Context, vehicleID string) (Assignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.nowFn()
	for _, a := range s.assignments {
		if a.VehicleID == vehicleID && a.ActiveAt(now) {
			return *a, true, nil
		}
	}
	return Assignment{}, false, nil
}
