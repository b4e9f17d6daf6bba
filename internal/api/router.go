package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/locamap/internal/middleware"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Engine      Engine
	Broadcaster *Broadcaster
	Health      *HealthHandlers

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Metrics records HTTP request metrics. Nil disables them.
	Metrics *middleware.Metrics

	// AllowedOrigins lists browser origins allowed to call the API and
	// open the stream.
	AllowedOrigins []string

	// CommandLimit rate-limits mutating commands per client IP. Nil
	// disables rate limiting.
	CommandLimit *middleware.RateLimitStore

	Logger *slog.Logger
}

// NewRouter builds the chi router. Tracing is applied by the caller around
// the returned handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	policy := middleware.NewOriginPolicy(cfg.AllowedOrigins)
	h := NewHandlers(cfg.Engine, cfg.Broadcaster, policy.CheckOrigin, cfg.Logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// CORS runs before route matching, so it also answers preflights.
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))

		r.Get("/view", h.GetView)
		r.Get("/stream", h.Stream)
		r.Get("/locations/{id}/photos", h.ListPhotos)

		r.Group(func(r chi.Router) {
			if cfg.CommandLimit != nil {
				r.Use(middleware.RateLimiter(cfg.CommandLimit, middleware.IPKeyFunc(), cfg.Metrics))
			}
			r.Post("/categories/{key}/select", h.SelectCategory)
			r.Put("/categories/{key}/page", h.SetPage)
			r.Post("/search", h.Search)
			r.Post("/device-location", h.UseDeviceLocation)
			r.Post("/locations", h.CreateLocation)
			r.Delete("/locations/{id}", h.DeleteLocation)
			r.Post("/locations/{id}/move", h.MoveToLocation)
			r.Post("/locations/{id}/comments", h.AddComment)
			r.Post("/locations/{id}/photos", h.UploadPhoto)
			r.Delete("/locations/{id}/photos/{name}", h.DeletePhoto)
		})
	})
	return r
}
