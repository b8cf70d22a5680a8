package dispatchservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/redis"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/handler"
	"ride-dispatch/internal/software/dispatch/offers"
	"ride-dispatch/internal/software/dispatch/presence"
	"ride-dispatch/internal/software/dispatch/relay"
	"ride-dispatch/internal/software/dispatch/rides"
	"ride-dispatch/internal/software/dispatch/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const serviceName = "dispatch-service"

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int, configPath string) error {
	// set up a new logger and context with a static request ID for startup logs
	log := logger.New(serviceName)
	ctx = log.WithRequestID(ctx, "startup-001")

	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err == nil {
		log.Debug(ctx, "dotenv_loaded", "Loaded .env file", nil)
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	log.SetLevel(cfg.Log.Level)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// the instance id tags relayed notifications and published events
	instanceID := uuid.NewString()

	var (
		mirrors    = presence.Mirrors{st.users}
		engineOpts []service.Option
	)

	// optional shared presence in Redis
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg)
		if err != nil {
			log.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, map[string]any{"addr": cfg.Redis.Addr})
			return err
		}
		defer client.Close()

		redisMirror := redis.NewPresenceMirror(client)
		mirrors = append(mirrors, redisMirror)
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Info(ctx, "redis_connected", "Presence is mirrored to Redis", map[string]any{"addr": cfg.Redis.Addr})
	}

	// optional broker for ride events and the cross-instance relay
	var rmq *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rmq, err = rabbitmq.Connect(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()

		engineOpts = append(engineOpts, service.WithPublisher(rabbitmq.NewRideEventPublisher(rmq, serviceName)))
		st.checks["rabbitmq"] = func(context.Context) error {
			if !rmq.Ready() {
				return errors.New("rabbitmq: not connected")
			}
			return nil
		}
	}

	// set up the JWT manager
	jwtManager, err := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)
	if err != nil {
		log.Error(ctx, "jwt_init_failed", "Failed to create token manager", err, nil)
		return err
	}

	// collectors; the ride gauges read the store on every scrape
	m := metrics.New(st.stats, log)

	hub := websocket.NewHub(log, jwtManager, websocket.Options{
		AuthTimeout:  cfg.WebSocket.AuthTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		PongWait:     cfg.WebSocket.PongWait,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
	}, nil)
	hub.OnSessionCount = func(n int) { m.Connections.Set(float64(n)) }

	directory := presence.NewDirectory(mirrors, log,
		presence.WithMirrorTimeout(cfg.Dispatch.StoreTimeout),
		presence.WithOnlineDrivers(func(n int) { m.DriversOnline.Set(float64(n)) }),
	)
	defer directory.Close()

	// set up the dispatch core
	machine := rides.New(log, st.uow, st.rides, st.offers, rides.Config{
		StoreTimeout: cfg.Dispatch.StoreTimeout,
		ReadRetries:  cfg.Dispatch.ReadRetries,
		HistoryLimit: cfg.Dispatch.HistoryLimit,
	})
	ledger := offers.New(log, st.uow, st.rides, st.offers, st.users, machine, cfg.Dispatch.StoreTimeout)

	engineOpts = append(engineOpts, service.WithMetrics(m))
	engine := service.NewEngine(log, machine, ledger, directory, st.users, hub, service.Config{
		RadiusKM:      cfg.Dispatch.RadiusKM,
		DefaultRating: cfg.Dispatch.DefaultRating,
		Producer:      serviceName,
	}, engineOpts...)
	hub.SetHandler(handler.NewWSRouter(engine, log))

	g, gctx := errgroup.WithContext(ctx)

	if rmq != nil && cfg.RabbitMQ.Relay {
		fwd := relay.New(log, hub, rabbitmq.NewRelayPublisher(rmq, instanceID))
		hub.SetFallback(fwd.Forward)
		g.Go(func() error { return fwd.Run(gctx, rmq) })
	}

	// set up the HTTP handler and its routes
	httpHandler := handler.NewDispatchHTTPHandler(engine, log, jwtManager, hub, st.users, st.checks)
	limitedHandler := withConcurrencyLimit(maxConcurrent, httpHandler.Router())

	port := cfg.Services.DispatchServicePort
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// no WriteTimeout: it would cut hijacked websocket connections
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", port),
		map[string]any{
			"port":           port,
			"max_concurrent": maxConcurrent,
			"store":          cfg.Dispatch.Store,
			"instance_id":    instanceID,
			"redis":          cfg.Redis.Enabled,
			"rabbitmq":       cfg.RabbitMQ.Enabled,
		},
	)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": port})
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		hub.Close()
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info(ctx, "service_stopped", "Dispatch Service stopped", nil)
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}

// userStore is what the service needs from the profile storage.
type userStore interface {
	ports.UserStore
	ports.UserSeeder
	ports.PresenceMirror
}

type rideStore interface {
	ports.RideStore
	ports.RideStats
}

type stores struct {
	uow    ports.UnitOfWork
	rides  rideStore
	offers ports.OfferStore
	users  userStore
	stats  ports.RideStats
	checks map[string]handler.HealthCheck
	close  func()
}
