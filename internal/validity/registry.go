package validity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleetcore.org/internal/ids"
)

var (
	ErrNotFound     = errors.New("validity: not found")
	ErrInvalidInput = errors.New("validity: invalid input")
	ErrUnknownKind  = errors.New("validity: unknown entity kind")
)

// Registry stores the dated entities that validity checks resolve by ID:
// compliance events, lease contracts and payment schedules. Documents live in
// their own package; the registry covers the kinds that have no richer store.
type Registry struct {
	mu        sync.RWMutex
	events    map[string]*ComplianceEvent
	contracts map[string]*LeaseContract
	schedules map[string]*PaymentSchedule
	newID     func() string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		events:    make(map[string]*ComplianceEvent),
		contracts: make(map[string]*LeaseContract),
		schedules: make(map[string]*PaymentSchedule),
		newID:     ids.New,
	}
}

// CreateComplianceEvent records a dated obligation. New events start pending
// unless the caller provides a status.
func (r *Registry) CreateComplianceEvent(ctx context.Context, ev ComplianceEvent) (ComplianceEvent, error) {
	if strings.TrimSpace(ev.EventType) == "" {
		return ComplianceEvent{}, fmt.Errorf("%w: event type required", ErrInvalidInput)
	}
	if ev.VehicleID == "" && ev.DriverID == "" {
		return ComplianceEvent{}, fmt.Errorf("%w: event needs a vehicle or driver", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.ID == "" {
		ev.ID = r.newID()
	}
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	cp := ev
	r.events[ev.ID] = &cp
	return ev, nil
}

func (r *Registry) GetComplianceEvent(ctx context.Context, id string) (ComplianceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return ComplianceEvent{}, ErrNotFound
	}
	return *ev, nil
}

// CreateLeaseContract records a lease term.
func (r *Registry) CreateLeaseContract(ctx context.Context, lc LeaseContract) (LeaseContract, error) {
	if lc.VehicleID == "" || lc.LesseeID == "" {
		return LeaseContract{}, fmt.Errorf("%w: vehicle and lessee required", ErrInvalidInput)
	}
	if lc.ExpiryDate != nil && lc.ExpiryDate.Before(lc.StartDate) {
		return LeaseContract{}, fmt.Errorf("%w: expiry precedes start", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if lc.ID == "" {
		lc.ID = r.newID()
	}
	if lc.Status == "" {
		lc.Status = StatusPending
	}
	cp := lc
	r.contracts[lc.ID] = &cp
	return lc, nil
}

func (r *Registry) GetLeaseContract(ctx context.Context, id string) (LeaseContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.contracts[id]
	if !ok {
		return LeaseContract{}, ErrNotFound
	}
	return *lc, nil
}

// CreatePaymentSchedule records one expected payment under a contract.
func (r *Registry) CreatePaymentSchedule(ctx context.Context, ps PaymentSchedule) (PaymentSchedule, error) {
	if ps.ContractID == "" {
		return PaymentSchedule{}, fmt.Errorf("%w: contract id required", ErrInvalidInput)
	}
	if ps.AmountDue <= 0 {
		return PaymentSchedule{}, fmt.Errorf("%w: amount due must be positive", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps.ID == "" {
		ps.ID = r.newID()
	}
	if ps.Status == "" {
		ps.Status = StatusPending
	}
	cp := ps
	r.schedules[ps.ID] = &cp
	return ps, nil
}

func (r *Registry) GetPaymentSchedule(ctx context.Context, id string) (PaymentSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ps, ok := r.schedules[id]
	if !ok {
		return PaymentSchedule{}, ErrNotFound
	}
	return *ps, nil
}

// ExpiryDate resolves the governing date for an entity by kind and ID, so a
// single check endpoint can serve every dated family the registry holds.
func (r *Registry) ExpiryDate(ctx context.Context, kind Kind, id string) (*time.Time, error) {
	switch kind {
	case KindComplianceEvent:
		ev, err := r.GetComplianceEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		return ev.DueDate, nil
	case KindLeaseContract:
		lc, err := r.GetLeaseContract(ctx, id)
		if err != nil {
			return nil, err
		}
		return lc.ExpiryDate, nil
	case KindPaymentSchedule:
		ps, err := r.GetPaymentSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		return ps.DueDate, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
