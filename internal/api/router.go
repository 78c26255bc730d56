// Package api provides the HTTP API for pulsewatch.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/api/handler"
	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	Tokens       middleware.TokenVerifier
	Monitors     *monitor.Service
	CheckTrigger handler.CheckTrigger

	// Streams is nil on instances that do not serve live viewers.
	Streams        *broadcast.Manager
	AllowedOrigins []string
	// AllowLocalOrigins admits localhost WebSocket origins. Development only.
	AllowLocalOrigins bool

	Dispatcher  handler.IncidentDispatcher
	Broadcaster broadcast.Broadcaster

	Registry  *resilience.Registry
	Scheduler handler.SchedulerStatus
	Store     handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pulsewatch-api"
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	opsCfg := handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Store:     cfg.Store,
		Registry:  cfg.Registry,
		Scheduler: cfg.Scheduler,
	}
	if cfg.Streams != nil {
		opsCfg.Streams = cfg.Streams
	}
	opsHandler := handler.NewOpsHandler(opsCfg)

	authMiddleware := middleware.Auth(cfg.Tokens)
	tenantRateLimit := middleware.RateLimitByTenant(middleware.StandardRateLimit)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Monitors != nil {
		heartbeatHandler := handler.NewHeartbeatHandler(cfg.Monitors, cfg.Logger)
		r.Route("/heartbeat/{token}", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RateLimitByIP(middleware.HeartbeatRateLimit))
			r.Get("/", heartbeatHandler.RecordHeartbeat)
			r.Post("/", heartbeatHandler.RecordHeartbeat)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, status requires authentication)
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Monitors != nil {
			monitorHandler := handler.NewMonitorHandler(cfg.Monitors, cfg.CheckTrigger, cfg.Logger)
			r.Route("/monitors", func(r chi.Router) {
				r.Use(middleware.ContentTypeJSON)
				r.Use(authMiddleware)
				r.Use(tenantRateLimit)
				r.Get("/", monitorHandler.ListMonitors)
				r.With(middleware.RequireJSON).Post("/", monitorHandler.CreateMonitor)
				r.Route("/{monitorId}", func(r chi.Router) {
					r.Get("/", monitorHandler.GetMonitor)
					r.With(middleware.RequireJSON).Patch("/", monitorHandler.UpdateMonitor)
					r.Post("/pause", monitorHandler.PauseMonitor)
					r.Post("/resume", monitorHandler.ResumeMonitor)
					r.Get("/checks", monitorHandler.ListChecks)
					r.Get("/stats", monitorHandler.GetStats)
					r.Get("/response-times", monitorHandler.GetResponseTimes)
					r.With(middleware.RateLimitByTenant(middleware.CheckNowRateLimit)).
						Post("/check", monitorHandler.CheckNow)
				})
			})
		}

		if cfg.Dispatcher != nil {
			incidentHandler := handler.NewIncidentHandler(cfg.Dispatcher, cfg.Broadcaster, cfg.Logger)
			r.Route("/incidents", func(r chi.Router) {
				r.Use(middleware.ContentTypeJSON)
				r.Use(authMiddleware)
				r.Use(tenantRateLimit)
				r.With(middleware.RequireJSON).Post("/events", incidentHandler.PostIncidentEvent)
			})
		}

		if cfg.Streams != nil {
			streamHandler := handler.NewStreamHandler(cfg.Streams, cfg.AllowedOrigins, cfg.AllowLocalOrigins)
			r.Route("/stream", func(r chi.Router) {
				r.Use(middleware.StreamAuth(cfg.Tokens))
				r.Get("/", streamHandler.DashboardSSE)
				r.Get("/ws", streamHandler.DashboardWS)
			})

			r.Route("/public/{tenantId}/stream", func(r chi.Router) {
				r.Use(publicCORS(cfg.AllowedOrigins))
				r.Get("/", streamHandler.PublicSSE)
				r.Options("/", func(w http.ResponseWriter, r *http.Request) {})
			})
		}
	})

	return r
}

// publicCORS lets status pages on other origins open the public stream.
// An empty allow-list admits any origin.
func publicCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Last-Event-ID", "Cache-Control"},
		MaxAge:         300,
	})
}
