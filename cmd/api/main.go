// Package main provides the entrypoint for the pulsewatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/api/handler"
	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
	"github.com/pulsewatch/pulsewatch/internal/auth"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/scheduler"
	"github.com/pulsewatch/pulsewatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pulsewatch-api"

	cfg, err := config.Load("")
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, err := telemetry.NewLogger(os.Stdout, serviceName, Version, cfg.App.LogLevel)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid log level")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Str("store", cfg.Store).
		Bool("engine", cfg.Engine.Enabled).
		Msg("starting pulsewatch API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		Region:         cfg.Engine.Region,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer shutdownTelemetry(log, tp)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}

	// The API process owns viewer connections. Events from a separate worker
	// arrive through the Pub/Sub relay.
	streams := broadcast.NewManager(broadcast.Config{
		KeepAlive: cfg.Stream.KeepAlive,
		Logger:    log,
	})
	go streams.Run(ctx)

	if cfg.PubSub.Enabled() && cfg.PubSub.Subscription != "" {
		relay, err := broadcast.NewRelay(ctx, broadcast.PubSubConfig{
			ProjectID:    cfg.PubSub.ProjectID,
			Topic:        cfg.PubSub.Topic,
			Subscription: cfg.PubSub.Subscription,
			Logger:       log,
		}, streams)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event relay")
		}
		defer relay.Close()
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event relay stopped")
			}
		}()
	}

	eng, err := engine.New(ctx, engine.Options{
		Config:      cfg,
		Logger:      log,
		Broadcaster: streams,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble engine")
	}
	defer eng.Close()

	// Check-now runs in-process when this instance also polls, otherwise it
	// is handed to the worker.
	var trigger handler.CheckTrigger
	switch {
	case cfg.Engine.Enabled:
		eng.Scheduler.Start(ctx)
		defer eng.Scheduler.Stop()
		trigger = eng.Scheduler
	case cfg.PubSub.ProjectID != "" && cfg.PubSub.TriggerTopic != "":
		publisher, err := scheduler.NewTriggerPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TriggerTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create trigger publisher")
		}
		defer publisher.Close()
		trigger = publisher
	default:
		log.Warn().Msg("scheduler disabled and no trigger topic - check-now is unavailable")
	}

	if cfg.Auth.SigningKey == "" {
		cfg.Auth.SigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	tokens := auth.NewTokenService(auth.TokenConfig{SigningKey: cfg.Auth.SigningKey})

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           httpMetrics,
		RequireTLS:        cfg.IsProduction(),
		Tokens:            tokens,
		Monitors:          eng.Monitors,
		CheckTrigger:      trigger,
		Streams:           streams,
		AllowedOrigins:    cfg.Stream.AllowedOrigins,
		AllowLocalOrigins: cfg.IsDevelopment(),
		Dispatcher:        eng.Dispatcher,
		Broadcaster:       streams,
		Registry:          eng.Registry,
		Scheduler:         eng.Scheduler,
		Store:             eng.Store,
	})

	// No WriteTimeout: event streams stay open. Regular handlers are bounded
	// by the request context and their store timeouts.
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func shutdownTelemetry(log zerolog.Logger, tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
}
