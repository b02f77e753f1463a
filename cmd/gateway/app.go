package main

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/shoply/gateway/internal/auth"
	authjwt "github.com/shoply/gateway/internal/auth/jwt"
	"github.com/shoply/gateway/internal/auth/revocation"
	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/circuitbreaker"
	"github.com/shoply/gateway/internal/config"
	"github.com/shoply/gateway/internal/gateway"
	"github.com/shoply/gateway/internal/health"
	"github.com/shoply/gateway/internal/middleware"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/proxy"
	"github.com/shoply/gateway/internal/router"
)

// userServiceBackend is the backend name the auth endpoints resolve
// credentials against.
const userServiceBackend = "user-service"

// application holds all application components.
type application struct {
	config        *config.Config
	server        *http.Server
	metricsServer *http.Server
	healthChecker *health.Checker
	metrics       *observability.Metrics
	sweeper       *revocation.Sweeper
	rateLimiter   *middleware.RateLimiter
	redisClient   *redis.Client
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("gateway")
	healthChecker := health.NewChecker()

	codec, err := authjwt.NewCodec(authjwt.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL.Duration(),
	})
	if err != nil {
		logger.Fatal("failed to initialize token codec", observability.Error(err))
	}

	app := &application{
		config:        cfg,
		healthChecker: healthChecker,
		metrics:       metrics,
	}

	store := initRevocationStore(app, cfg, logger)
	app.sweeper = revocation.NewSweeper(store,
		func(token string) error {
			_, err := codec.Verify(token)
			return err
		},
		cfg.Revocation.SweepInterval.Duration(),
		revocation.WithSweeperLogger(logger),
		revocation.WithSweeperSizeCallback(metrics.SetRevokedTokens),
	)

	backends, err := backend.NewRegistry(cfg.Backends)
	if err != nil {
		logger.Fatal("failed to load backends", observability.Error(err))
	}

	table, err := router.NewTable(cfg.Routes)
	if err != nil {
		logger.Fatal("failed to load routes", observability.Error(err))
	}

	authenticator := auth.NewAuthenticator(codec, store,
		auth.WithAuthenticatorLogger(logger),
		auth.WithAuthenticatorMetrics(metrics),
	)

	localMux, err := buildLocalHandler(cfg, codec, store, backends, authenticator, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build auth endpoints", observability.Error(err))
	}

	gw, err := gateway.New(table,
		proxy.NewForwarder(backends, proxy.WithLogger(logger)),
		authenticator, localMux,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("failed to build gateway", observability.Error(err))
	}

	handler := buildMiddlewareChain(app, gw, logger)

	mux := http.NewServeMux()
	healthChecker.Register(mux)
	mux.Handle("/", handler)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, metrics.Handler())
		app.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
	}

	return app
}

// initRevocationStore selects the store backend from config.
func initRevocationStore(app *application, cfg *config.Config, logger observability.Logger) revocation.Store {
	if cfg.Revocation.Store == "redis" {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Revocation.Redis.Address,
			Password: cfg.Revocation.Redis.Password,
			DB:       cfg.Revocation.Redis.DB,
		})
		logger.Info("using redis revocation store",
			observability.String("address", cfg.Revocation.Redis.Address),
		)
		return revocation.NewRedisStore(app.redisClient, cfg.Revocation.Redis.KeyPrefix)
	}
	return revocation.NewMemoryStore()
}

// buildLocalHandler wires the gateway's own auth endpoints. They need
// the user service backend; routes pointing at "local" without it are a
// configuration error.
func buildLocalHandler(
	cfg *config.Config,
	codec *authjwt.Codec,
	store revocation.Store,
	backends *backend.Registry,
	authenticator *auth.Authenticator,
	metrics *observability.Metrics,
	logger observability.Logger,
) (http.Handler, error) {
	hasLocal := false
	for _, route := range cfg.Routes {
		if route.Backend == router.LocalBackend {
			hasLocal = true
			break
		}
	}
	if !hasLocal {
		return http.NotFoundHandler(), nil
	}

	target, ok := backends.Get(userServiceBackend)
	if !ok {
		return nil, fmt.Errorf("local auth routes require a %q backend", userServiceBackend)
	}

	breakerConfig := &circuitbreaker.Config{
		MaxFailures:      cfg.CircuitBreaker.MaxFailures,
		CoolDown:         cfg.CircuitBreaker.CoolDown.Duration(),
		HalfOpenMax:      cfg.CircuitBreaker.HalfOpenMax,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		FailureRatio:     cfg.CircuitBreaker.FailureRatio,
		MinRequests:      cfg.CircuitBreaker.MinRequests,
		SamplingWindow:   cfg.CircuitBreaker.SamplingWindow.Duration(),
		IsSuccessful:     auth.BreakerClassifier,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	}
	breakers := circuitbreaker.NewRegistry(breakerConfig, logger)

	service := auth.NewService(
		backend.NewUserClient(target.URL.String(), target.Timeout,
			backend.WithUserClientLogger(logger)),
		codec, store, breakers,
		auth.WithServiceLogger(logger),
	)

	mux := http.NewServeMux()
	auth.NewHandlers(service, authenticator, logger).Register(mux)
	return mux, nil
}
