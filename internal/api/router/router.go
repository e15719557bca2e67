// Package router wires the HTTP surface: the WhatsApp webhook, health check,
// and Prometheus metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ordena/pizzabot/internal/http/handlers"
	httpmiddleware "github.com/ordena/pizzabot/internal/http/middleware"
	"github.com/ordena/pizzabot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.WebhookHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Webhook.HealthCheck)
	r.Post("/webhooks/whatsapp", cfg.Webhook.HandleMessage)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
