// Package handler exposes the dispatch engine over HTTP and WebSocket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// DispatchHTTPHandler serves the REST endpoints and the WebSocket upgrade.
type DispatchHTTPHandler struct {
	engine  *service.Engine
	logger  *logger.Logger
	auth    *jwt.Manager
	hub     *websocket.Hub
	metrics *metrics.Metrics
	seeder  ports.UserSeeder
	checks  map[string]HealthCheck
}

// NewDispatchHTTPHandler wires the HTTP surface. seeder may be nil, in which
// case POST /tokens issues tokens without provisioning a profile.
func NewDispatchHTTPHandler(
	engine *service.Engine,
	logger *logger.Logger,
	auth *jwt.Manager,
	hub *websocket.Hub,
	seeder ports.UserSeeder,
	checks map[string]HealthCheck,
) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{
		engine:  engine,
		logger:  logger,
		auth:    auth,
		hub:     hub,
		metrics: engine.Metrics(),
		seeder:  seeder,
		checks:  checks,
	}
}

// Router mounts every endpoint on a gorilla/mux router.
func (handler *DispatchHTTPHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(handler.recoverMiddleware)
	router.Use(handler.observabilityMiddleware)

	authed := func(h http.HandlerFunc, roles ...user.Role) http.Handler {
		return jwt.Middleware(handler.auth, handler.authError, roles...)(h)
	}

	router.Handle("/rides/history", authed(handler.handleHistory, user.RolePassenger, user.RoleDriver)).Methods(http.MethodGet)
	router.Handle("/drivers/nearby", authed(handler.handleNearbyDrivers, user.RolePassenger)).Methods(http.MethodGet)
	router.HandleFunc("/tokens", handler.handleCreateToken).Methods(http.MethodPost)
	router.HandleFunc("/health", handler.handleHealth).Methods(http.MethodGet)
	if handler.metrics != nil {
		router.Handle("/metrics", handler.metrics.Handler()).Methods(http.MethodGet)
	}
	// the socket authenticates with its first frame
	router.HandleFunc("/ws", handler.hub.ServeWS).Methods(http.MethodGet)
	return router
}

// ----- general helpers -----

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// httpError sends a JSON error response with a message.
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	if status >= 500 {
		handler.logger.Error(ctx, action, msg, err, nil)
	} else {
		details := map[string]any{"status": status}
		if err != nil {
			details["error"] = err.Error()
		}
		handler.logger.Warn(ctx, action, msg, details)
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// appError maps an apperr kind onto the response status and reason code.
func (handler *DispatchHTTPHandler) appError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= 500 {
		handler.logger.Error(ctx, "http_internal_error", "Request failed", err, nil)
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: apperr.Message(err), Code: apperr.Code(kind)})
}

func (handler *DispatchHTTPHandler) authError(w http.ResponseWriter, r *http.Request, status int, err error) {
	ctx := handler.withReqID(r.Context(), r)
	msg := "unauthorized"
	if status == http.StatusForbidden || errors.Is(err, jwt.ErrRoleForbidden) {
		msg = "forbidden"
	}
	handler.httpError(ctx, w, status, msg, err)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	if logger.RequestID(ctx) != "" {
		return ctx
	}
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

func actorFromClaims(claims *jwt.Claims) service.Actor {
	return service.Actor{ID: claims.UserID(), Role: claims.Role, VehicleTypeID: claims.VehicleTypeID}
}
