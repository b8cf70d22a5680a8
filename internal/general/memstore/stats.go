package memstore

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
)

// CountByStatus returns the number of rides per status.
func (s *Rides) CountByStatus(ctx context.Context) (map[ride.Status]int, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make(map[ride.Status]int, 5)
	for _, row := range s.rides {
		out[row.ride.Status]++
	}
	return out, nil
}

// CancellationRateBetween returns the share of rides created within [start, end) that were cancelled.
func (s *Rides) CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var total, cancelled int
	for _, row := range s.rides {
		created := row.ride.CreatedAt
		if created.Before(start) || !created.Before(end) {
			continue
		}
		total++
		if row.ride.Status == ride.StatusCancelled {
			cancelled++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(cancelled) / float64(total), nil
}
