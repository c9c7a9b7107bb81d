// Package ops is the authorization boundary in front of the domain
// services. Every mutating operation resolves the caller's permission first,
// then delegates, then writes an audit entry. Handlers never reach into the
// domain packages directly.
package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetcore.org/internal/audit"
	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/docs"
	"fleetcore.org/internal/escrow"
	"fleetcore.org/internal/fleet"
	"fleetcore.org/internal/validity"
)

// Service wires the domain services behind one permission-checked facade.
type Service struct {
	authz    *auth.Authorizer
	fleet    fleet.Service
	escrow   escrow.Service
	docs     docs.Service
	validity *validity.Engine
	registry *validity.Registry
}

// New constructs the facade. All dependencies are required except the
// validity engine, which defaults to wall-clock UTC, and the registry,
// which defaults to an empty in-memory one.
func New(authz *auth.Authorizer, fl fleet.Service, esc escrow.Service, dc docs.Service, eng *validity.Engine, reg *validity.Registry) (*Service, error) {
	if authz == nil || fl == nil || esc == nil || dc == nil {
		return nil, errors.New("ops: all services are required")
	}
	if eng == nil {
		eng = validity.NewEngine(nil)
	}
	if reg == nil {
		reg = validity.NewRegistry()
	}
	return &Service{authz: authz, fleet: fl, escrow: esc, docs: dc, validity: eng, registry: reg}, nil
}

// Authorize exposes the raw permission check for handlers that gate reads.
func (s *Service) Authorize(ctx context.Context, userID, permissionCode string) bool {
	return s.authz.Authorize(ctx, userID, permissionCode)
}

func (s *Service) require(ctx context.Context, userID, permissionCode string) error {
	if !s.authz.Authorize(ctx, userID, permissionCode) {
		return fmt.Errorf("%w: %s", auth.ErrUnauthorized, permissionCode)
	}
	return nil
}

// CreateTrip plans a new trip.
func (s *Service) CreateTrip(ctx context.Context, userID string, trip fleet.Trip) (fleet.Trip, error) {
	if err := s.require(ctx, userID, auth.PermTripsCreate); err != nil {
		return fleet.Trip{}, err
	}
	created, err := s.fleet.CreateTrip(ctx, trip)
	if err != nil {
		return fleet.Trip{}, err
	}
	_ = audit.LogEvent(ctx, "trip.created", map[string]any{
		"trip_id": created.ID, "vehicle_id": created.VehicleID,
	})
	return created, nil
}

// GetTrip reads a trip.
func (s *Service) GetTrip(ctx context.Context, userID, tripID string) (fleet.Trip, error) {
	if err := s.require(ctx, userID, auth.PermTripsRead); err != nil {
		return fleet.Trip{}, err
	}
	return s.fleet.GetTrip(ctx, tripID)
}

// AddStop appends a stop to a trip.
func (s *Service) AddStop(ctx context.Context, userID, tripID string, stop fleet.TripStop) (fleet.TripStop, error) {
	if err := s.require(ctx, userID, auth.PermTripsTransition); err != nil {
		return fleet.TripStop{}, err
	}
	return s.fleet.AddStop(ctx, tripID, stop)
}

// ListStops reads a trip's stops in sequence order.
func (s *Service) ListStops(ctx context.Context, userID, tripID string) ([]fleet.TripStop, error) {
	if err := s.require(ctx, userID, auth.PermTripsRead); err != nil {
		return nil, err
	}
	return s.fleet.Stops(ctx, tripID)
}

// CompleteStop timestamps a stop.
func (s *Service) CompleteStop(ctx context.Context, userID, tripID, stopID string) (fleet.TripStop, error) {
	if err := s.require(ctx, userID, auth.PermTripsTransition); err != nil {
		return fleet.TripStop{}, err
	}
	return s.fleet.CompleteStop(ctx, tripID, stopID)
}

// RecordMetrics stores the fuel/mileage reconciliation for a trip.
func (s *Service) RecordMetrics(ctx context.Context, userID string, m fleet.TripMetrics) error {
	if err := s.require(ctx, userID, auth.PermTripsTransition); err != nil {
		return err
	}
	return s.fleet.RecordMetrics(ctx, m)
}

// TripMetrics reads the recorded reconciliation for a trip.
func (s *Service) TripMetrics(ctx context.Context, userID, tripID string) (fleet.TripMetrics, error) {
	if err := s.require(ctx, userID, auth.PermTripsRead); err != nil {
		return fleet.TripMetrics{}, err
	}
	return s.fleet.Metrics(ctx, tripID)
}

// TransitionTrip advances the trip lifecycle on the caller's behalf.
func (s *Service) TransitionTrip(ctx context.Context, userID, tripID string, target fleet.TripStatus) (fleet.Trip, error) {
	if err := s.require(ctx, userID, auth.PermTripsTransition); err != nil {
		return fleet.Trip{}, err
	}
	trip, err := s.fleet.Transition(ctx, tripID, target)
	if err != nil {
		return fleet.Trip{}, err
	}
	_ = audit.LogEvent(ctx, "trip.transitioned", map[string]any{
		"trip_id": trip.ID, "status": string(trip.Status),
	})
	return trip, nil
}

// AddVehicle registers a fleet unit.
func (s *Service) AddVehicle(ctx context.Context, userID string, v fleet.Vehicle) (fleet.Vehicle, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesAssign); err != nil {
		return fleet.Vehicle{}, err
	}
	return s.fleet.AddVehicle(ctx, v)
}

// GetVehicle reads a vehicle.
func (s *Service) GetVehicle(ctx context.Context, userID, vehicleID string) (fleet.Vehicle, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesRead); err != nil {
		return fleet.Vehicle{}, err
	}
	return s.fleet.GetVehicle(ctx, vehicleID)
}

// SetVehicleStatus moves a vehicle through its availability states.
func (s *Service) SetVehicleStatus(ctx context.Context, userID, vehicleID string, target fleet.VehicleStatus) (fleet.Vehicle, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesAssign); err != nil {
		return fleet.Vehicle{}, err
	}
	v, err := s.fleet.SetVehicleStatus(ctx, vehicleID, target)
	if err != nil {
		return fleet.Vehicle{}, err
	}
	_ = audit.LogEvent(ctx, "vehicle.status_changed", map[string]any{
		"vehicle_id": v.ID, "status": string(v.Status),
	})
	return v, nil
}

// CreateAssignment links a driver and contract to a vehicle.
func (s *Service) CreateAssignment(ctx context.Context, userID string, a fleet.Assignment) (fleet.Assignment, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesAssign); err != nil {
		return fleet.Assignment{}, err
	}
	created, err := s.fleet.CreateAssignment(ctx, a)
	if err != nil {
		return fleet.Assignment{}, err
	}
	_ = audit.LogEvent(ctx, "assignment.created", map[string]any{
		"assignment_id": created.ID, "vehicle_id": created.VehicleID,
	})
	return created, nil
}

// ActiveAssignmentForVehicle reports the assignment currently covering a
// vehicle, if any.
func (s *Service) ActiveAssignmentForVehicle(ctx context.Context, userID, vehicleID string) (fleet.Assignment, bool, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesRead); err != nil {
		return fleet.Assignment{}, false, err
	}
	return s.fleet.ActiveAssignmentForVehicle(ctx, vehicleID)
}

// EndAssignment closes an assignment.
func (s *Service) EndAssignment(ctx context.Context, userID, assignmentID string) (fleet.Assignment, error) {
	if err := s.require(ctx, userID, auth.PermVehiclesAssign); err != nil {
		return fleet.Assignment{}, err
	}
	return s.fleet.EndAssignment(ctx, assignmentID)
}

// PostEscrowTransaction applies a posting to an escrow account.
func (s *Service) PostEscrowTransaction(ctx context.Context, userID, accountID string, t escrow.TransactionType, amount int64, reference string) (escrow.EscrowTransaction, error) {
	if err := s.require(ctx, userID, auth.PermEscrowPost); err != nil {
		return escrow.EscrowTransaction{}, err
	}
	tx, err := s.escrow.PostTransaction(ctx, accountID, t, amount, reference)
	if err != nil {
		return escrow.EscrowTransaction{}, err
	}
	_ = audit.LogEvent(ctx, "escrow.posted", map[string]any{
		"account_id": tx.AccountID, "type": string(tx.Type), "sequence": tx.Sequence,
	})
	return tx, nil
}

// OpenEscrowAccount opens the escrow account for a contract.
func (s *Service) OpenEscrowAccount(ctx context.Context, userID, contractID string) (escrow.EscrowAccount, error) {
	if err := s.require(ctx, userID, auth.PermEscrowPost); err != nil {
		return escrow.EscrowAccount{}, err
	}
	return s.escrow.OpenAccount(ctx, contractID)
}

// SetEscrowAccountStatus freezes, closes or reopens an escrow account.
func (s *Service) SetEscrowAccountStatus(ctx context.Context, userID, accountID string, status escrow.AccountingStatus) (escrow.EscrowAccount, error) {
	if err := s.require(ctx, userID, auth.PermEscrowPost); err != nil {
		return escrow.EscrowAccount{}, err
	}
	acc, err := s.escrow.SetAccountStatus(ctx, accountID, status)
	if err != nil {
		return escrow.EscrowAccount{}, err
	}
	_ = audit.LogEvent(ctx, "escrow.account_status_changed", map[string]any{
		"account_id": acc.ID, "status": string(acc.Status),
	})
	return acc, nil
}

// GetEscrowAccount reads an escrow account.
func (s *Service) GetEscrowAccount(ctx context.Context, userID, accountID string) (escrow.EscrowAccount, error) {
	if err := s.require(ctx, userID, auth.PermEscrowPost); err != nil {
		return escrow.EscrowAccount{}, err
	}
	return s.escrow.GetAccount(ctx, accountID)
}

// ListEscrowTransactions reads an account's posting log.
func (s *Service) ListEscrowTransactions(ctx context.Context, userID, accountID string) ([]escrow.EscrowTransaction, error) {
	if err := s.require(ctx, userID, auth.PermEscrowPost); err != nil {
		return nil, err
	}
	return s.escrow.ListTransactions(ctx, accountID)
}

// CreateSettlement records a draft settlement.
func (s *Service) CreateSettlement(ctx context.Context, userID string, stl escrow.Settlement) (escrow.Settlement, error) {
	if err := s.require(ctx, userID, auth.PermSettlementsIssue); err != nil {
		return escrow.Settlement{}, err
	}
	return s.escrow.CreateSettlement(ctx, stl)
}

// GetSettlement reads a settlement.
func (s *Service) GetSettlement(ctx context.Context, userID, settlementID string) (escrow.Settlement, error) {
	if err := s.require(ctx, userID, auth.PermSettlementsIssue); err != nil {
		return escrow.Settlement{}, err
	}
	return s.escrow.GetSettlement(ctx, settlementID)
}

// IssueSettlement finalizes a draft settlement.
func (s *Service) IssueSettlement(ctx context.Context, userID, settlementID string) (escrow.Settlement, error) {
	if err := s.require(ctx, userID, auth.PermSettlementsIssue); err != nil {
		return escrow.Settlement{}, err
	}
	stl, err := s.escrow.IssueSettlement(ctx, settlementID)
	if err != nil {
		return escrow.Settlement{}, err
	}
	_ = audit.LogEvent(ctx, "settlement.issued", map[string]any{
		"settlement_id": stl.ID, "net_amount": stl.NetAmount,
	})
	return stl, nil
}

// RecordDocumentVersion appends a version to a compliance document.
func (s *Service) RecordDocumentVersion(ctx context.Context, userID, documentID string, in docs.VersionInput) (docs.DocumentVersion, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsWrite); err != nil {
		return docs.DocumentVersion{}, err
	}
	if in.CreatedBy == "" {
		in.CreatedBy = userID
	}
	v, err := s.docs.RecordVersion(ctx, documentID, in)
	if err != nil {
		return docs.DocumentVersion{}, err
	}
	_ = audit.LogEvent(ctx, "document.version_recorded", map[string]any{
		"document_id": v.DocumentID, "version": v.Version,
	})
	return v, nil
}

// CreateDocument registers a compliance document.
func (s *Service) CreateDocument(ctx context.Context, userID string, doc docs.Document) (docs.Document, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsWrite); err != nil {
		return docs.Document{}, err
	}
	return s.docs.CreateDocument(ctx, doc)
}

// GetDocument reads a document with its latest version.
func (s *Service) GetDocument(ctx context.Context, userID, documentID string) (docs.Document, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsRead); err != nil {
		return docs.Document{}, err
	}
	return s.docs.GetDocument(ctx, documentID)
}

// CheckValidity evaluates expiry for a dated entity. A document check also
// reports whether a usable OCR extraction exists.
type ValidityResult struct {
	validity.Report
	HasValidOCR *bool `json:"has_valid_ocr,omitempty"`
}

// CheckDocumentValidity answers the validity questions for one document.
func (s *Service) CheckDocumentValidity(ctx context.Context, userID, documentID string) (ValidityResult, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsRead); err != nil {
		return ValidityResult{}, err
	}
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return ValidityResult{}, err
	}
	ocr, err := s.docs.HasValidOCR(ctx, documentID)
	if err != nil {
		return ValidityResult{}, err
	}
	res := ValidityResult{Report: s.validity.Check(validity.KindDocument, doc.ExpiryDate)}
	res.HasValidOCR = &ocr
	return res, nil
}

// CheckValidityAt evaluates an arbitrary expiry date for a kind, as of an
// explicit instant. Used by the compliance dashboard endpoints.
func (s *Service) CheckValidityAt(ctx context.Context, userID string, kind validity.Kind, expiry *time.Time, asOf time.Time) (validity.Report, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsRead); err != nil {
		return validity.Report{}, err
	}
	return s.validity.CheckAt(kind, expiry, asOf), nil
}

// CheckValidity resolves a stored entity by kind and ID and evaluates its
// governing date. Documents resolve through the document store, the dated
// registry kinds through the registry.
func (s *Service) CheckValidity(ctx context.Context, userID string, kind validity.Kind, entityID string) (validity.Report, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsRead); err != nil {
		return validity.Report{}, err
	}
	var expiry *time.Time
	switch kind {
	case validity.KindDocument, validity.KindVehicleDocument:
		doc, err := s.docs.GetDocument(ctx, entityID)
		if err != nil {
			return validity.Report{}, err
		}
		expiry = doc.ExpiryDate
	default:
		var err error
		expiry, err = s.registry.ExpiryDate(ctx, kind, entityID)
		if err != nil {
			return validity.Report{}, err
		}
	}
	return s.validity.Check(kind, expiry), nil
}

// CreateComplianceEvent records a dated obligation on a vehicle or driver.
func (s *Service) CreateComplianceEvent(ctx context.Context, userID string, ev validity.ComplianceEvent) (validity.ComplianceEvent, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsWrite); err != nil {
		return validity.ComplianceEvent{}, err
	}
	created, err := s.registry.CreateComplianceEvent(ctx, ev)
	if err != nil {
		return validity.ComplianceEvent{}, err
	}
	_ = audit.LogEvent(ctx, "compliance_event.created", map[string]any{
		"event_id": created.ID, "event_type": created.EventType,
	})
	return created, nil
}

// CreateLeaseContract records a lease term.
func (s *Service) CreateLeaseContract(ctx context.Context, userID string, lc validity.LeaseContract) (validity.LeaseContract, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsWrite); err != nil {
		return validity.LeaseContract{}, err
	}
	created, err := s.registry.CreateLeaseContract(ctx, lc)
	if err != nil {
		return validity.LeaseContract{}, err
	}
	_ = audit.LogEvent(ctx, "lease_contract.created", map[string]any{
		"contract_id": created.ID, "vehicle_id": created.VehicleID,
	})
	return created, nil
}

// CreatePaymentSchedule records an expected payment under a contract.
func (s *Service) CreatePaymentSchedule(ctx context.Context, userID string, ps validity.PaymentSchedule) (validity.PaymentSchedule, error) {
	if err := s.require(ctx, userID, auth.PermDocumentsWrite); err != nil {
		return validity.PaymentSchedule{}, err
	}
	created, err := s.registry.CreatePaymentSchedule(ctx, ps)
	if err != nil {
		return validity.PaymentSchedule{}, err
	}
	_ = audit.LogEvent(ctx, "payment_schedule.created", map[string]any{
		"schedule_id": created.ID, "contract_id": created.ContractID,
	})
	return created, nil
}
