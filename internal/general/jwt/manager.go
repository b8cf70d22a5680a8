package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"ride-dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken       = errors.New("missing or malformed Authorization")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoSubject          = errors.New("token has no subject")
	ErrRoleForbidden      = errors.New("role not allowed")
	ErrDriverVehicleType  = errors.New("driver token requires a vehicle type")
)

// Manager issues and validates HS256 access tokens.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
}

// NewManager creates a token manager.
func NewManager(secret string, accessTTL time.Duration) (*Manager, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, errors.New("jwt: empty secret key")
	}
	if accessTTL <= 0 {
		return nil, errors.New("jwt: ttl must be positive")
	}
	return &Manager{secret: []byte(s), accessTTL: accessTTL}, nil
}

// IssueUserToken returns a signed access token for a passenger or driver.
func (m *Manager) IssueUserToken(userID string, role user.Role, vehicleTypeID string) (string, *Claims, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, ErrNoSubject
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}
	if role.IsDriver() && strings.TrimSpace(vehicleTypeID) == "" {
		return "", nil, ErrDriverVehicleType
	}

	claims := NewUserClaims(userID, role, vehicleTypeID, m.accessTTL)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// FromAuthorization reads "Authorization: Bearer <token>", falling back to
// the "token" query parameter for browser websocket clients.
func FromAuthorization(r *http.Request) (string, error) {
	if raw, ok := stripBearer(r.Header.Get("Authorization")); ok {
		return raw, nil
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("token")); raw != "" {
		if stripped, ok := stripBearer(raw); ok {
			return stripped, nil
		}
		return raw, nil
	}
	return "", ErrMissingToken
}

func stripBearer(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// ParseAndValidate verifies signature, expiry and subject.
func (m *Manager) ParseAndValidate(tokenString string) (*Claims, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrNoSubject
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// RoleAllowed asserts the claims' role is one of the allowed. No roles means any role.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if len(allowed) == 0 || slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

type ctxKey string

const claimsCtxKey ctxKey = "dispatch_jwt_claims"

// InjectClaims adds JWT claims to the context.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// FromContext extracts JWT claims from the context.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*Claims)
	return c, ok
}
