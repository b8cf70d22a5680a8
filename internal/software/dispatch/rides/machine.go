package rides

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/retry"
	"ride-dispatch/internal/ports"
)

// Config carries the store limits from dispatch.* config.
type Config struct {
	StoreTimeout time.Duration
	ReadRetries  int
	HistoryLimit int
}

// Machine drives ride status transitions. Every transition is one conditional
// update inside a unit of work, followed by an audit event in the same unit.
type Machine struct {
	logger  *logger.Logger
	uow     ports.UnitOfWork
	rides   ports.RideStore
	offers  ports.OfferStore
	reads   *retry.Retrier
	cfg     Config
	nowFunc func() time.Time
}

func New(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideStore,
	offers ports.OfferStore,
	cfg Config,
) *Machine {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Machine{
		logger:  logger,
		uow:     uow,
		rides:   rides,
		offers:  offers,
		reads:   retry.New(retry.ReadConfig(cfg.ReadRetries), logger),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

func (m *Machine) now() time.Time { return m.nowFunc().UTC() }

// inTx runs fn in a unit of work bounded by the store timeout.
func (m *Machine) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	return m.uow.WithinTx(ctx, fn)
}

// appendEvent records a status change in the audit trail.
func (m *Machine) appendEvent(ctx context.Context, rideID string, eventType ride.EventType, from, to ride.Status, extra map[string]any) error {
	event, err := ride.TransitionEvent(rideID, eventType, from, to, extra)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "build ride event")
	}
	return m.rides.AppendEvent(ctx, event)
}

// load returns the ride inside the caller's unit of work.
func (m *Machine) load(ctx context.Context, rideID string) (*ride.Ride, error) {
	if rideID == "" {
		return nil, apperr.InvalidInput("ride_id is required")
	}
	return m.rides.Get(ctx, rideID)
}

func invalidInput(err error) error {
	return apperr.Wrap(apperr.KindInvalidInput, err, "")
}
