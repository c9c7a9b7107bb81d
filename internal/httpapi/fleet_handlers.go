package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/fleet"
)

type createTripRequest struct {
	VehicleID     string    `json:"vehicle_id"`
	DriverUserID  string    `json:"driver_user_id"`
	PlannedStart  time.Time `json:"planned_start_at"`
	OriginCity    string    `json:"origin_city"`
	OriginState   string    `json:"origin_state"`
	DestCity      string    `json:"dest_city"`
	DestState     string    `json:"dest_state"`
	DistanceMiles float64   `json:"distance_miles"`
}

type addStopRequest struct {
	StopType     string   `json:"stop_type"`
	StopSequence int      `json:"stop_sequence"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
}

type recordMetricsRequest struct {
	MilesDriven float64 `json:"miles_driven"`
	FuelGallons float64 `json:"fuel_gallons"`
}

type transitionRequest struct {
	Target string `json:"target"`
}

type createVehicleRequest struct {
	UnitNumber     string `json:"unit_number"`
	VIN            string `json:"vin"`
	CurrentMileage int64  `json:"current_mileage"`
}

type vehicleStatusRequest struct {
	Status string `json:"status"`
}

type createAssignmentRequest struct {
	VehicleID    string     `json:"vehicle_id"`
	ContractID   string     `json:"contract_id"`
	DriverUserID string     `json:"driver_user_id"`
	StartDate    *time.Time `json:"start_date"`
}

func (a *API) handleTripsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	trip, err := a.ops.CreateTrip(r.Context(), caller, fleet.Trip{
		VehicleID:     req.VehicleID,
		DriverUserID:  req.DriverUserID,
		PlannedStart:  req.PlannedStart,
		OriginCity:    req.OriginCity,
		OriginState:   req.OriginState,
		DestCity:      req.DestCity,
		DestState:     req.DestState,
		DistanceMiles: req.DistanceMiles,
	})
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/trips/%s", trip.ID))
	writeJSON(w, http.StatusCreated, trip)
}

func (a *API) handleTripResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/trips/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	tripID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		trip, err := a.ops.GetTrip(r.Context(), caller, tripID)
		if err != nil {
			handleFleetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, trip)
		return
	}

	if len(parts) == 4 && parts[1] == "stops" && parts[3] == "complete" {
		a.completeStop(w, r, caller, tripID, parts[2])
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "stops":
		a.handleStops(w, r, caller, tripID)
	case "metrics":
		a.recordMetrics(w, r, caller, tripID)
	case "transition":
		a.transitionTrip(w, r, caller, tripID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleStops(w http.ResponseWriter, r *http.Request, caller, tripID string) {
	switch r.Method {
	case http.MethodGet:
		stops, err := a.ops.ListStops(r.Context(), caller, tripID)
		if err != nil {
			handleFleetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stops)
	case http.MethodPost:
		a.addStop(w, r, caller, tripID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) completeStop(w http.ResponseWriter, r *http.Request, caller, tripID, stopID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	stop, err := a.ops.CompleteStop(r.Context(), caller, tripID, stopID)
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stop)
}

func (a *API) addStop(w http.ResponseWriter, r *http.Request, caller, tripID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req addStopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := a.ops.AddStop(r.Context(), caller, tripID, fleet.TripStop{
		StopType:     fleet.StopType(req.StopType),
		StopSequence: req.StopSequence,
		Lat:          req.Lat,
		Lon:          req.Lon,
	})
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stop)
}

func (a *API) recordMetrics(w http.ResponseWriter, r *http.Request, caller, tripID string) {
	if r.Method == http.MethodGet {
		m, err := a.ops.TripMetrics(r.Context(), caller, tripID)
		if err != nil {
			handleFleetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		return
	}
	var req recordMetricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.MilesDriven < 0 || req.FuelGallons < 0 {
		writeError(w, r, http.StatusBadRequest, "metrics must be non-negative")
		return
	}
	err := a.ops.RecordMetrics(r.Context(), caller, fleet.TripMetrics{
		TripID:      tripID,
		MilesDriven: req.MilesDriven,
		FuelGallons: req.FuelGallons,
	})
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) transitionTrip(w http.ResponseWriter, r *http.Request, caller, tripID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	trip, err := a.ops.TransitionTrip(r.Context(), caller, tripID, fleet.TripStatus(req.Target))
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (a *API) handleVehiclesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createVehicleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.ops.AddVehicle(r.Context(), caller, fleet.Vehicle{
		UnitNumber:     req.UnitNumber,
		VIN:            req.VIN,
		CurrentMileage: req.CurrentMileage,
	})
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/vehicles/%s", v.ID))
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) handleVehicleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/vehicles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	vehicleID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		v, err := a.ops.GetVehicle(r.Context(), caller, vehicleID)
		if err != nil {
			handleFleetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	if len(parts) == 2 && parts[1] == "assignment" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		assignment, ok, err := a.ops.ActiveAssignmentForVehicle(r.Context(), caller, vehicleID)
		if err != nil {
			handleFleetError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, http.StatusNotFound, "no active assignment")
			return
		}
		writeJSON(w, http.StatusOK, assignment)
		return
	}

	if len(parts) != 2 || parts[1] != "status" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req vehicleStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.ops.SetVehicleStatus(r.Context(), caller, vehicleID, fleet.VehicleStatus(req.Status))
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleAssignmentsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignment := fleet.Assignment{
		VehicleID:    req.VehicleID,
		ContractID:   req.ContractID,
		DriverUserID: req.DriverUserID,
	}
	if req.StartDate != nil {
		assignment.StartDate = *req.StartDate
	}
	created, err := a.ops.CreateAssignment(r.Context(), caller, assignment)
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/assignments/%s", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleAssignmentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assignments/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "end" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	ended, err := a.ops.EndAssignment(r.Context(), caller, parts[0])
	if err != nil {
		handleFleetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ended)
}

func handleFleetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, fleet.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, fleet.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, fleet.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "fleet operation failed")
	}
}
