package contracts

// RequestRidePayload is the body of "requestRide".
// A non-empty DriverID makes the request targeted; otherwise it is broadcast within RadiusKM
// (or the configured default radius).
type RequestRidePayload struct {
	Pickup        GeoPoint `json:"pickup"`
	Dropoff       GeoPoint `json:"dropoff"`
	VehicleTypeID string   `json:"vehicle_type_id"`
	DistanceKM    *float64 `json:"distance_km,omitempty"`
	DriverID      string   `json:"driver_id,omitempty"`
	RadiusKM      float64  `json:"radius_km,omitempty"`
}

// NewRideRequestPayload is sent to candidate drivers.
type NewRideRequestPayload struct {
	Ride          RideView `json:"ride"`
	PassengerName string   `json:"passenger_name,omitempty"`
	DistanceKM    *float64 `json:"distance_to_pickup_km,omitempty"`
}

// RideRequestedPayload is returned to the requesting passenger.
type RideRequestedPayload struct {
	Ride           RideView `json:"ride"`
	CandidateCount int      `json:"candidate_count"`
}
