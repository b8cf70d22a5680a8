package postgres

import (
	"context"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/ride"
)

// CountByStatus returns the number of rides per status.
func (repo *RideRepo) CountByStatus(ctx context.Context) (map[ride.Status]int, error) {
	rows, err := conn(ctx, repo.pool).Query(ctx, `
		SELECT status, COUNT(*)
		FROM rides
		GROUP BY status
	`)
	if err != nil {
		return nil, mapError(err, "count rides by status")
	}
	defer rows.Close()

	out := make(map[ride.Status]int, 5)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[ride.Status(status)] = n
	}
	return out, mapError(rows.Err(), "rows error")
}

// CancellationRateBetween returns the share of rides created within [start, end) that were cancelled.
func (repo *RideRepo) CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error) {
	var total, cancelled int64
	err := conn(ctx, repo.pool).QueryRow(ctx, `
		SELECT
			COUNT(*) AS total_cnt,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled_cnt
		FROM rides
		WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&total, &cancelled)
	if err != nil {
		return 0, mapError(err, "cancellation rate")
	}

	if total == 0 {
		return 0, nil
	}
	return float64(cancelled) / float64(total), nil
}
