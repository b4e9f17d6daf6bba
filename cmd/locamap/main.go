// Package main is the entry point for the locamap server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/locamap/internal/api"
	"github.com/onnwee/locamap/internal/config"
	"github.com/onnwee/locamap/internal/engine"
	"github.com/onnwee/locamap/internal/middleware"
	"github.com/onnwee/locamap/internal/tracing"
)

const (
	serviceName      = "locamap"
	shutdownTimeout  = 10 * time.Second
	limiterSweep     = time.Minute
	limiterIdleAfter = 10 * time.Minute
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("locamap server")
		fmt.Println()
		fmt.Println("Usage: locamap [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil {
		fmt.Fprintln(os.Stderr, errors.Join(errs...))
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run serves on ln until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.TracingEnabled,
		Service:     serviceName,
		Environment: cfg.Env,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TracingSampleRate,
		Insecure:    cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	b, err := newBackends(cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := engine.NewMetrics()
	if err := engineMetrics.Register(reg); err != nil {
		return fmt.Errorf("register engine metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	eng := engine.New(engine.Config{
		Channel:            b.channel,
		Blobs:              b.blobs,
		Geocoder:           b.geocoder,
		Locator:            b.locator,
		Sanitizer:          b.sanitizer,
		SearchDebounce:     time.Duration(cfg.SearchDebounceMS) * time.Millisecond,
		CascadePhotoDelete: cfg.CascadePhotoDelete,
		Metrics:            engineMetrics,
		Logger:             logger,
	})
	broadcaster := api.NewBroadcaster(logger)
	broadcaster.Attach(eng)
	defer func() {
		if err := eng.Stop(); err != nil {
			logger.Warn("engine stop failed", "error", err)
		}
	}()

	limits := middleware.NewRateLimitStore(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.CommandRatePerSecond,
		Burst:             cfg.CommandBurst,
	})

	router := api.NewRouter(api.RouterConfig{
		Engine:         eng,
		Broadcaster:    broadcaster,
		Health:         api.NewHealthHandlers(b.checks),
		Gatherer:       reg,
		Metrics:        httpMetrics,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CommandLimit:   limits,
		Logger:         logger,
	})

	server := &http.Server{
		Handler:      middleware.Tracing(serviceName)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := eng.Start(gctx); err != nil {
		g.Go(func() error {
			subscribe(gctx, eng, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limits.Cleanup(limiterIdleAfter); n > 0 {
					logger.Debug("rate limiters evicted", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(sctx)
		// Shutdown does not track hijacked websocket connections.
		broadcaster.Close()
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// subscribe retries starting the replica with exponential backoff until it
// succeeds or ctx ends. The engine reports the first failure to stream
// clients and counts the rest while the server keeps serving the empty
// replica.
func subscribe(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error { return eng.Start(ctx) },
		backoff.WithContext(eb, ctx),
		func(err error, wait time.Duration) {
			logger.Warn("replica subscription failed, retrying", "error", err, "retry_in", wait)
		},
	)
	if err != nil && ctx.Err() == nil {
		logger.Error("replica subscription abandoned", "error", err)
	}
}
