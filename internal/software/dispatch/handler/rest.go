package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
)

// ----- GET /rides/history -----

func (handler *DispatchHTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := jwt.RequireClaims(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "unauthorized", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			handler.httpError(ctx, w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
	}

	list, err := handler.engine.History(ctx, actorFromClaims(claims), limit)
	if err != nil {
		handler.appError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{"rides": list})
}

// ----- GET /drivers/nearby -----

func (handler *DispatchHTTPHandler) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := jwt.RequireClaims(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "unauthorized", err)
		return
	}

	q := r.URL.Query()
	query := contracts.NearbyDriversQuery{VehicleTypeID: q.Get("vehicle_type_id")}
	if q.Has("lat") || q.Has("lng") {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		if latErr != nil || lngErr != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "lat and lng must both be numbers", nil)
			return
		}
		query.Location = &contracts.GeoPoint{Lat: lat, Lng: lng}
	}
	if raw := q.Get("radius_km"); raw != "" {
		if query.RadiusKM, err = strconv.ParseFloat(raw, 64); err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "radius_km must be a number", err)
			return
		}
	}

	res, err := handler.engine.NearbyDrivers(ctx, actorFromClaims(claims), query)
	if err != nil {
		handler.appError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

// ----- POST /tokens -----

type TokenRequest struct {
	UserID        string    `json:"user_id"`
	Role          user.Role `json:"role"`
	VehicleTypeID string    `json:"vehicle_type_id,omitempty"`
	Name          string    `json:"name,omitempty"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

// handleCreateToken mints a development token and provisions the matching profile.
func (handler *DispatchHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	role, err := user.ParseRole(req.Role.String())
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be PASSENGER, DRIVER or ADMIN", err)
		return
	}
	req.Role = role

	if handler.seeder != nil {
		profile := &user.User{
			ID:            req.UserID,
			Name:          strings.TrimSpace(req.Name),
			Role:          role,
			Status:        user.StatusActive,
			VehicleTypeID: strings.TrimSpace(req.VehicleTypeID),
		}
		if err := handler.seeder.Upsert(ctx, profile); err != nil {
			handler.appError(ctx, w, err)
			return
		}
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, role, req.VehicleTypeID)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      role,
	})
}

// ----- GET /health -----

func (handler *DispatchHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(handler.checks))
	for name, check := range handler.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	handler.jsonResponse(ctx, w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	})
}
