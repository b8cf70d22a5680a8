package handler

import (
	"context"
	"encoding/json"
	"time"

	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/software/dispatch/service"
)

// WSRouter decodes inbound frames and calls the engine. It implements websocket.Handler.
type WSRouter struct {
	engine  *service.Engine
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewWSRouter(engine *service.Engine, logger *logger.Logger) *WSRouter {
	return &WSRouter{engine: engine, logger: logger, metrics: engine.Metrics()}
}

func sessionActor(s *websocket.Session) service.Actor {
	return service.Actor{ID: s.UserID, Role: s.Role, VehicleTypeID: s.VehicleTypeID, Handle: s.Handle}
}

func (router *WSRouter) OnConnect(ctx context.Context, s *websocket.Session) error {
	return router.engine.Connect(ctx, sessionActor(s))
}

func (router *WSRouter) OnDisconnect(ctx context.Context, s *websocket.Session) {
	router.engine.Disconnect(ctx, s.UserID, s.Handle)
}

// OnMessage handles one inbound event to completion. Failures are reported to
// the sender as an error frame; the connection stays open.
func (router *WSRouter) OnMessage(ctx context.Context, s *websocket.Session, msg contracts.WSMessage) {
	start := time.Now()
	err := router.route(ctx, s, msg)

	code := "OK"
	if err != nil {
		code = apperr.Code(apperr.KindOf(err))
		if apperr.KindOf(err) == apperr.KindInternal {
			router.logger.Error(ctx, "ws_event_failed", "Inbound event failed", err, map[string]any{"event": msg.Type})
		} else {
			router.logger.Debug(ctx, "ws_event_rejected", "Inbound event rejected", map[string]any{
				"event": msg.Type,
				"code":  code,
				"error": err.Error(),
			})
		}
		if sendErr := s.Send(contracts.EventError, service.ErrorPayload(msg.Type, err)); sendErr != nil {
			router.logger.Warn(ctx, "ws_error_send_failed", "Failed to report error to sender", map[string]any{"error": sendErr.Error()})
		}
	}
	router.metrics.ObserveEvent(msg.Type, code, time.Since(start))
}

func (router *WSRouter) route(ctx context.Context, s *websocket.Session, msg contracts.WSMessage) error {
	actor := sessionActor(s)
	engine := router.engine

	switch msg.Type {
	case contracts.EventRequestRide:
		in, err := decode[contracts.RequestRidePayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.RequestRide(ctx, actor, in)
		return err

	case contracts.EventSubmitOffer:
		in, err := decode[contracts.SubmitOfferPayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.SubmitOffer(ctx, actor, in)
		return err

	case contracts.EventAcceptOffer:
		in, err := decode[contracts.AcceptOfferPayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.AcceptOffer(ctx, actor, in)
		return err

	case contracts.EventConfirmStart:
		in, err := decode[contracts.RideRefPayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.ConfirmStart(ctx, actor, in)
		return err

	case contracts.EventCancelRide:
		in, err := decode[contracts.CancelRidePayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.CancelRide(ctx, actor, in)
		return err

	case contracts.EventCompleteRide:
		in, err := decode[contracts.RideRefPayload](msg.Data)
		if err != nil {
			return err
		}
		_, err = engine.CompleteRide(ctx, actor, in)
		return err

	case contracts.EventUpdateLocation:
		in, err := decode[contracts.UpdateLocationPayload](msg.Data)
		if err != nil {
			return err
		}
		return engine.UpdateLocation(ctx, actor, in)

	case contracts.EventNearbyDrivers:
		in, err := decode[contracts.NearbyDriversQuery](msg.Data)
		if err != nil {
			return err
		}
		res, err := engine.NearbyDrivers(ctx, actor, in)
		if err != nil {
			return err
		}
		return s.Send(contracts.EventNearbyDriversResult, res)

	default:
		return apperr.InvalidInput("unknown event type %q", msg.Type)
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, apperr.InvalidInput("message data is required")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, apperr.Wrap(apperr.KindInvalidInput, err, "malformed message data")
	}
	return out, nil
}
