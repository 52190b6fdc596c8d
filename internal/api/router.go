package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

type RouterConfig struct {
	Service *allocation.Service
	Logger  *zap.Logger
	Checks  []DependencyCheck
	Metrics http.Handler
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/providers", func(r chi.Router) {
		r.Post("/", createProviderHandler(cfg.Service))
		r.Get("/", listProvidersHandler(cfg.Service))
		r.Post("/{providerID}/slots", createSlotHandler(cfg.Service))
		r.Get("/{providerID}/slots", listSlotsHandler(cfg.Service))
		r.Get("/{providerID}/waitlist", waitlistHandler(cfg.Service))
		r.Post("/{providerID}/waitlist/promote", promoteWaitlistHandler(cfg.Service))
	})

	r.Route("/api/tokens", func(r chi.Router) {
		r.Post("/", requestTokenHandler(cfg.Service))
		r.Delete("/{tokenID}/cancel", cancelTokenHandler(cfg.Service))
		r.Post("/{tokenID}/complete", completeTokenHandler(cfg.Service))
		r.Get("/{tokenID}/status", tokenStatusHandler(cfg.Service))
	})

	return r
}
