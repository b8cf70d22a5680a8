package jwt

import (
	"strings"
	"time"

	"ride-dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Role          user.Role `json:"role"`
	VehicleTypeID string    `json:"vehicle_type_id,omitempty"` // drivers only
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims builds claims for a passenger or driver.
func NewUserClaims(userID string, role user.Role, vehicleTypeID string, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	if role.IsDriver() {
		claims.VehicleTypeID = strings.TrimSpace(vehicleTypeID)
	}
	return claims
}

// UserID is the authenticated identity.
func (c *Claims) UserID() string { return c.Subject }
