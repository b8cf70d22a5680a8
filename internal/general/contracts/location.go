package contracts

// UpdateLocationPayload is the body of "updateLocation".
type UpdateLocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NearbyDriversQuery is the body of "nearbyDrivers".
// Without a location the sender's last known position is used.
type NearbyDriversQuery struct {
	VehicleTypeID string    `json:"vehicle_type_id"`
	Location      *GeoPoint `json:"location,omitempty"`
	RadiusKM      float64   `json:"radius_km,omitempty"`
}

// NearbyDriver is one entry of the nearbyDrivers result.
type NearbyDriver struct {
	DriverID   string    `json:"driver_id"`
	Location   *GeoPoint `json:"location,omitempty"`
	DistanceKM *float64  `json:"distance_km,omitempty"`
}

// NearbyDriversPayload is the result of a nearby drivers query.
type NearbyDriversPayload struct {
	VehicleTypeID string         `json:"vehicle_type_id"`
	Drivers       []NearbyDriver `json:"drivers"`
	Fallback      bool           `json:"fallback"` // sender location unknown, all online drivers returned
}
