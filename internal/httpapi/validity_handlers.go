package httpapi

import (
	"errors"
	"net/http"
	"time"

	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/docs"
	"fleetcore.org/internal/validity"
)

type createComplianceEventRequest struct {
	VehicleID string     `json:"vehicle_id"`
	DriverID  string     `json:"driver_id"`
	EventType string     `json:"event_type"`
	DueDate   *time.Time `json:"due_date"`
}

type createLeaseContractRequest struct {
	VehicleID  string     `json:"vehicle_id"`
	LesseeID   string     `json:"lessee_id"`
	StartDate  time.Time  `json:"start_date"`
	ExpiryDate *time.Time `json:"expiry_date"`
}

type createPaymentScheduleRequest struct {
	ContractID string     `json:"contract_id"`
	DueDate    *time.Time `json:"due_date"`
	AmountDue  int64      `json:"amount_due"`
}

func (a *API) handleComplianceEventsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createComplianceEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.ops.CreateComplianceEvent(r.Context(), caller, validity.ComplianceEvent{
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
		EventType: req.EventType,
		DueDate:   req.DueDate,
	})
	if err != nil {
		handleValidityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) handleLeaseContractsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createLeaseContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	lc, err := a.ops.CreateLeaseContract(r.Context(), caller, validity.LeaseContract{
		VehicleID:  req.VehicleID,
		LesseeID:   req.LesseeID,
		StartDate:  req.StartDate,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		handleValidityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lc)
}

func (a *API) handlePaymentSchedulesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createPaymentScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ps, err := a.ops.CreatePaymentSchedule(r.Context(), caller, validity.PaymentSchedule{
		ContractID: req.ContractID,
		DueDate:    req.DueDate,
		AmountDue:  req.AmountDue,
	})
	if err != nil {
		handleValidityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ps)
}

// handleValidityCheck answers expiry questions two ways: with entity_id the
// service resolves the stored entity's governing date by kind; with a raw
// expiry it evaluates the supplied date against the kind's policy window.
func (a *API) handleValidityCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	kind := validity.Kind(q.Get("kind"))
	if kind == "" {
		kind = validity.KindDocument
	}

	if entityID := q.Get("entity_id"); entityID != "" {
		report, err := a.ops.CheckValidity(r.Context(), caller, kind, entityID)
		if err != nil {
			handleValidityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	var expiry *time.Time
	if raw := q.Get("expiry"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "expiry must be RFC 3339")
			return
		}
		expiry = &t
	}

	asOf := time.Now().UTC()
	if raw := q.Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "as_of must be RFC 3339")
			return
		}
		asOf = t
	}

	report, err := a.ops.CheckValidityAt(r.Context(), caller, kind, expiry, asOf)
	if err != nil {
		handleValidityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func handleValidityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, validity.ErrInvalidInput), errors.Is(err, validity.ErrUnknownKind):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, validity.ErrNotFound), errors.Is(err, docs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "validity operation failed")
	}
}
