package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

// AppendEvent inserts a new ride_events row.
func (repo *RideRepo) AppendEvent(ctx context.Context, event *ride.Event) error {
	if event == nil {
		return apperr.InvalidInput("event is required")
	}
	if err := event.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride event")
	}

	data, err := event.DataJSON()
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	err = conn(ctx, repo.pool).QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id::text, created_at
	`,
		event.RideID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	return mapError(err, "insert ride event")
}

// Events returns the audit trail of a ride in insertion order.
func (repo *RideRepo) Events(ctx context.Context, rideID string) ([]ride.Event, error) {
	rows, err := conn(ctx, repo.pool).Query(ctx, `
		SELECT id::text, ride_id, event_type, event_data, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY id
	`, rideID)
	if err != nil {
		return nil, mapError(err, "query ride events")
	}
	defer rows.Close()

	var out []ride.Event
	for rows.Next() {
		var (
			e         ride.Event
			eventType string
			raw       []byte
		)
		if err := rows.Scan(&e.ID, &e.RideID, &eventType, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ride event: %w", err)
		}
		e.Type = ride.EventType(eventType)
		e.Data = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Data); err != nil {
				return nil, fmt.Errorf("decode ride event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "rows error")
}
