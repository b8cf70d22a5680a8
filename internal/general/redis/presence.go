package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/config"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// GeoKey is the GEO set holding the last position of every online identity.
	GeoKey = "presence:geo"

	presenceKeyPrefix = "presence:"
)

// PresenceMirror copies presence changes into Redis so other instances and
// ops tooling can see who is online and where.
type PresenceMirror struct {
	client *goredis.Client
	now    func() time.Time
}

// NewClient opens a client from config and pings it once.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

func NewPresenceMirror(client *goredis.Client) *PresenceMirror {
	return &PresenceMirror{client: client, now: time.Now}
}

func presenceKey(userID string) string { return presenceKeyPrefix + userID }

// MarkOnline stores the connection handle and flags the identity online.
func (m *PresenceMirror) MarkOnline(ctx context.Context, userID, handle string) error {
	err := m.client.HSet(ctx, presenceKey(userID), map[string]any{
		"online":  "true",
		"handle":  handle,
		"updated": m.now().UTC().Format(time.RFC3339),
	}).Err()
	return wrap(err, "mark online")
}

// MarkOffline clears the handle and drops the identity from the GEO set.
// The last coordinate stays in the hash.
func (m *PresenceMirror) MarkOffline(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	_, err := m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"online":  "false",
			"updated": m.now().UTC().Format(time.RFC3339),
		})
		pipe.HDel(ctx, key, "handle")
		pipe.ZRem(ctx, GeoKey, userID)
		return nil
	})
	return wrap(err, "mark offline")
}

// UpdatePosition writes the coordinate into the GEO set and the presence hash.
func (m *PresenceMirror) UpdatePosition(ctx context.Context, userID string, point geo.Point) error {
	key := presenceKey(userID)
	_, err := m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.GeoAdd(ctx, GeoKey, &goredis.GeoLocation{
			Name:      userID,
			Longitude: point.Longitude,
			Latitude:  point.Latitude,
		})
		pipe.HSet(ctx, key, map[string]any{
			"lat":     strconv.FormatFloat(point.Latitude, 'f', -1, 64),
			"lng":     strconv.FormatFloat(point.Longitude, 'f', -1, 64),
			"updated": m.now().UTC().Format(time.RFC3339),
		})
		return nil
	})
	return wrap(err, "update position")
}

func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	if err == goredis.Nil {
		return apperr.Wrap(apperr.KindNotFound, err, what+": not found")
	}
	return apperr.Wrap(apperr.KindUnavailable, err, "redis "+what)
}
