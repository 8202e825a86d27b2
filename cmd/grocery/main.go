// Package main runs the grocery cart and order API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/quickgrocery/grocery/internal/app"
	"github.com/quickgrocery/grocery/internal/config"
	"github.com/quickgrocery/grocery/internal/notify"
	"github.com/quickgrocery/grocery/internal/store"
	"github.com/quickgrocery/grocery/pkg/auth"
	"github.com/quickgrocery/grocery/pkg/bootstrap"
	"github.com/quickgrocery/grocery/pkg/config/configloader"
	"github.com/quickgrocery/grocery/pkg/messaging"
	natsclient "github.com/quickgrocery/grocery/pkg/nats"
	"github.com/quickgrocery/grocery/pkg/server"
	"github.com/quickgrocery/grocery/pkg/telemetry"
)

const serviceName = "grocery"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the database and the broker, and serves until ctx is done.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Telemetry.Traces.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownWithTimeout(cfg, logger, "tracer provider", tp.Shutdown)
	}
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		mp, handler, err := telemetry.NewMeterProvider(serviceName)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		defer shutdownWithTimeout(cfg, logger, "meter provider", mp.Shutdown)
		metricsHandler = handler
	}

	if cfg.Database.Migrate {
		if err := store.RunMigrations(cfg.Database.URL, logger); err != nil {
			return err
		}
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer dbPool.Close()
	logger.Info("Successfully connected to the database!")

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	var js jetstream.JetStream
	if cfg.Nats.Enabled {
		nc, err := natsclient.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
		if err != nil {
			return err
		}
		defer nc.Close()
		js, err = natsclient.NewJetStreamContext(nc)
		if err != nil {
			return err
		}
		if err := natsclient.EnsureStream(ctx, js, cfg.Nats.Stream, messaging.OrdersSubjects); err != nil {
			return err
		}
		publisher = natsclient.NewJetStreamPublisher(js)
		logger.Info("Order events are published to NATS", slog.String("stream", cfg.Nats.Stream))
	}

	deps := app.SetupDependencies(store.NewPgStore(dbPool), publisher, verifier, logger)
	deps.MetricsHandler = metricsHandler
	deps.MetricsPath = cfg.Telemetry.Metrics.Path
	httpServer := app.SetupHttpServer(deps, cfg, serviceName)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gCtx, httpServer, cfg.Shutdown.Timeout, logger)
	})
	if cfg.PProf.Enabled {
		pprofServer := &http.Server{Addr: cfg.PProf.Addr, ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader}
		g.Go(func() error {
			return server.Serve(gCtx, pprofServer, cfg.Shutdown.Timeout, logger.With("component", "pprof"))
		})
	}

	if js != nil && cfg.Nats.Subscriber.Enabled {
		handler := notify.OrderPlacedHandler(notify.NewLogNotifier(logger), logger)
		g.Go(func() error {
			logger.Info("Order confirmation consumer started", slog.String("consumer", cfg.Nats.Subscriber.Consumer))
			return natsclient.Subscribe(gCtx, js, cfg.Nats.Stream, cfg.Nats.Subscriber, handler, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

func shutdownWithTimeout(cfg *config.Config, logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down "+name, "error", err)
	}
}
