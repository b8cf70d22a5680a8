// Package service is the dispatch engine: it turns inbound events of
// authenticated identities into ride transitions and outbound notifications.
package service

import (
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/matcher"
	"ride-dispatch/internal/software/dispatch/offers"
	"ride-dispatch/internal/software/dispatch/presence"
	"ride-dispatch/internal/software/dispatch/rides"
)

// Config holds the engine defaults from the dispatch.* config section.
type Config struct {
	RadiusKM      float64
	DefaultRating float64
	Producer      string
}

// Engine is safe for concurrent use; every method runs to completion
// independently of the caller's connection.
type Engine struct {
	logger    *logger.Logger
	rides     *rides.Machine
	offers    *offers.Ledger
	directory *presence.Directory
	matcher   *matcher.Matcher
	users     ports.UserStore
	transport ports.Transport
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	cfg       Config
}

type Option func(*Engine)

// WithPublisher publishes committed ride transitions.
func WithPublisher(pub ports.EventPublisher) Option {
	return func(engine *Engine) {
		if pub != nil {
			engine.publisher = pub
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(engine *Engine) { engine.metrics = m }
}

// NewEngine wires the dispatch engine. users may be nil, in which case
// notifications carry no names and vehicle details.
func NewEngine(
	logger *logger.Logger,
	rideMachine *rides.Machine,
	ledger *offers.Ledger,
	directory *presence.Directory,
	users ports.UserStore,
	transport ports.Transport,
	cfg Config,
	opts ...Option,
) *Engine {
	if cfg.RadiusKM <= 0 {
		cfg.RadiusKM = 10
	}
	if cfg.Producer == "" {
		cfg.Producer = "dispatch-service"
	}
	engine := &Engine{
		logger:    logger,
		rides:     rideMachine,
		offers:    ledger,
		directory: directory,
		matcher:   matcher.New(directory),
		users:     users,
		transport: transport,
		publisher: ports.NopPublisher{},
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Metrics returns the collectors the engine reports to, or nil.
func (engine *Engine) Metrics() *metrics.Metrics { return engine.metrics }
