package fleet

import (
	"context"
	"errors"
	"testing"
	"time"
)

func addVehicle(t *testing.T, s *InMemory, unit, vin string) Vehicle {
	t.Helper()
	v, err := s.AddVehicle(context.Background(), Vehicle{UnitNumber: unit, VIN: vin})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestVehicleStatusEdges(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	v := addVehicle(t, s, "T-100", "1FUJA6CK84LM12345")

	if v.Status != VehicleAtYard {
		t.Fatalf("new vehicles start at the yard, got %s", v.Status)
	}
	if _, err := s.SetVehicleStatus(ctx, v.ID, VehicleActive); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetVehicleStatus(ctx, v.ID, VehicleOutOfService); err != nil {
		t.Fatal(err)
	}

	// out_of_service recovers only through the yard.
	if _, err := s.SetVehicleStatus(ctx, v.ID, VehicleActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("out_of_service -> active must be rejected, got %v", err)
	}
	if _, err := s.SetVehicleStatus(ctx, v.ID, VehicleAtYard); err != nil {
		t.Fatal(err)
	}
	got, err := s.SetVehicleStatus(ctx, v.ID, VehicleActive)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != VehicleActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestMaintenanceExitStampsService(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	v := addVehicle(t, s, "T-101", "1FUJA6CK84LM54321")

	_, _ = s.SetVehicleStatus(ctx, v.ID, VehicleInMaintenance)
	got, err := s.SetVehicleStatus(ctx, v.ID, VehicleAtYard)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastServiceAt == nil {
		t.Fatalf("leaving maintenance must record the service time")
	}
}

func TestDuplicateUnitRejected(t *testing.T) {
	s := newTestStore()
	addVehicle(t, s, "T-102", "VIN-A")
	if _, err := s.AddVehicle(context.Background(), Vehicle{UnitNumber: "T-102", VIN: "VIN-B"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate unit number must be rejected, got %v", err)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	v := addVehicle(t, s, "T-103", "VIN-C")

	a, err := s.CreateAssignment(ctx, Assignment{VehicleID: v.ID, DriverUserID: "d1", ContractID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != AssignmentActive || a.EndDate != nil {
		t.Fatalf("fresh assignment must be active and open-ended: %+v", a)
	}

	// The vehicle is busy; a second active assignment is rejected.
	if _, err := s.CreateAssignment(ctx, Assignment{VehicleID: v.ID, DriverUserID: "d2"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("overlapping assignment must be rejected, got %v", err)
	}

	ended, err := s.EndAssignment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ended.EndDate == nil || ended.Status != AssignmentEnded {
		t.Fatalf("ending must close the range: %+v", ended)
	}
	firstEnd := *ended.EndDate

	// Ending again is a no-op and must not move the end date.
	again, err := s.EndAssignment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.EndDate.Equal(firstEnd) {
		t.Fatalf("end date must be set exactly once")
	}

	if _, err := s.CreateAssignment(ctx, Assignment{VehicleID: v.ID, DriverUserID: "d2"}); err != nil {
		t.Fatalf("vehicle should be assignable after the old assignment ends: %v", err)
	}
}

func TestAssignmentActiveAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	a := Assignment{Status: AssignmentActive, StartDate: start, EndDate: &end}

	if a.ActiveAt(start.Add(-time.Hour)) {
		t.Fatalf("before start must be inactive")
	}
	if !a.ActiveAt(start) {
		t.Fatalf("start instant is covered")
	}
	if a.ActiveAt(end) {
		t.Fatalf("end instant is excluded")
	}

	open := Assignment{Status: AssignmentActive, StartDate: start}
	if !open.ActiveAt(start.AddDate(10, 0, 0)) {
		t.Fatalf("open-ended assignment covers any future instant")
	}
}
