package geo

import (
	"errors"
	"strings"
)

// Point is a WGS84 coordinate with an optional human-readable address.
type Point struct {
	Latitude  float64
	Longitude float64
	Address   string
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewPoint constructs a validated Point.
func NewPoint(latitude, longitude float64, address string) (Point, error) {
	point := Point{
		Latitude:  latitude,
		Longitude: longitude,
		Address:   strings.TrimSpace(address),
	}
	if err := point.Validate(); err != nil {
		return Point{}, err
	}
	return point, nil
}

// Validate checks coordinate ranges.
func (point Point) Validate() error {
	if point.Latitude < -90 || point.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if point.Longitude < -180 || point.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Equal compares the coordinates only; the address is ignored.
func (point Point) Equal(other Point) bool {
	return point.Latitude == other.Latitude && point.Longitude == other.Longitude
}
