package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shoply/gateway/internal/middleware"
	"github.com/shoply/gateway/internal/observability"
)

// rateLimiterEvictionInterval controls how often idle client buckets
// are dropped.
const rateLimiterEvictionInterval = 5 * time.Minute

// runGateway starts the servers and blocks until shutdown completes.
func runGateway(app *application, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.sweeper.Start(ctx)
	if app.rateLimiter != nil {
		startRateLimiterEviction(ctx, app.rateLimiter)
	}

	if app.metricsServer != nil {
		go func() {
			logger.Info("metrics server listening",
				observability.String("addr", app.metricsServer.Addr),
			)
			if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", observability.Error(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", observability.String("addr", app.server.Addr))
		serverErr <- app.server.ListenAndServe()
	}()
	app.healthChecker.SetReady(true)

	waitForShutdown(app, serverErr, cancel, logger)
}

// waitForShutdown waits for a signal or server failure, then drains.
func waitForShutdown(app *application, serverErr <-chan error, cancel context.CancelFunc, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", observability.Error(err))
		}
	}

	app.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if app.metricsServer != nil {
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	// Stop the sweeper and eviction goroutines.
	cancel()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", observability.Error(err))
		}
	}

	logger.Info("gateway stopped")
}

// startRateLimiterEviction drops idle client buckets periodically.
func startRateLimiterEviction(ctx context.Context, rl *middleware.RateLimiter) {
	go func() {
		ticker := time.NewTicker(rateLimiterEvictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.EvictIdle(2 * rateLimiterEvictionInterval)
			}
		}
	}()
}
