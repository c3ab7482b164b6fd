// Package router assembles the HTTP surface of the marketplace.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accessmod/lead-marketplace/internal/audit"
	httpmiddleware "github.com/accessmod/lead-marketplace/internal/http/middleware"
	"github.com/accessmod/lead-marketplace/internal/leads"
	"github.com/accessmod/lead-marketplace/internal/payments"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// Config holds router configuration. LeadsHandler is required.
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *leads.Handler
	PaymentMethods     *payments.MethodsHandler
	AuditHandler       *audit.Handler
	MetricsHandler     http.Handler
	RequestObserver    httpmiddleware.RequestObserver
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// HealthCheck, when set, is consulted by /health (e.g. a database ping).
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.RequestObserver))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimitRPS > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		api.Use(middleware.Timeout(30 * time.Second))

		h := cfg.LeadsHandler
		api.Route("/leads", func(r chi.Router) {
			r.Post("/generate", h.Generate)
			r.Get("/", h.List)
			r.Post("/purchase", h.Purchase)
			r.Put("/status", h.UpdateStatus)
			r.Route("/{leadID}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Get("/matches", h.Matches)
				if cfg.AuditHandler != nil {
					r.Get("/history", cfg.AuditHandler.History)
				}
			})
		})
		api.Route("/payments", func(r chi.Router) {
			r.Post("/create-intent", h.CreateIntent)
			r.Post("/confirm", h.Confirm)
			if cfg.PaymentMethods != nil {
				r.Get("/methods", cfg.PaymentMethods.List)
				r.Post("/methods", cfg.PaymentMethods.Attach)
			}
		})
		api.Get("/contractors/{contractorID}/performance", h.Performance)
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
