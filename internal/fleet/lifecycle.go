package fleet

// Transition tables. Guards that need trip context (stops, metrics,
// timestamps) are enforced in Service.Transition; these tables only encode
// which edges exist.

var tripTransitions = map[TripStatus][]TripStatus{
	TripPlanned:   {TripLoaded, TripCancelled},
	TripLoaded:    {TripInTransit, TripCancelled},
	TripInTransit: {TripDelivered, TripCancelled},
	TripDelivered: {TripCompleted, TripCancelled},
	TripCompleted: {},
	TripCancelled: {},
}

func tripTransitionAllowed(from, to TripStatus) bool {
	for _, next := range tripTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Vehicle edges: operational states rotate through the yard and the shop;
// out_of_service is recoverable only via the yard.
var vehicleTransitions = map[VehicleStatus][]VehicleStatus{
	VehicleActive:        {VehicleInTransit, VehicleInMaintenance, VehicleAtYard, VehicleOutOfService},
	VehicleInTransit:     {VehicleActive, VehicleAtYard, VehicleInMaintenance, VehicleOutOfService},
	VehicleInMaintenance: {VehicleActive, VehicleAtYard, VehicleOutOfService},
	VehicleAtYard:        {VehicleActive, VehicleInMaintenance, VehicleOutOfService},
	VehicleOutOfService:  {VehicleAtYard},
}

func vehicleTransitionAllowed(from, to VehicleStatus) bool {
	for _, next := range vehicleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
