// Package router assembles the HTTP surface of the inbox API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicdesk/inbox-platform/internal/http/handlers"
	httpmiddleware "github.com/clinicdesk/inbox-platform/internal/http/middleware"
	"github.com/clinicdesk/inbox-platform/internal/webhook"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	WebhookGateway     *webhook.Gateway
	Conversations      *handlers.ConversationHandlers
	AgentAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: provider webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WebhookGateway != nil {
			public.Route("/webhooks/whatsapp/{tenantID}", func(r chi.Router) {
				r.Get("/", cfg.WebhookGateway.HandleVerification)
				r.Post("/", cfg.WebhookGateway.HandleIngest)
			})
		}
	})

	// Agent-facing API, JWT required.
	if cfg.Conversations != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.AgentJWT(cfg.AgentAuthSecret))
			api.Get("/conversations/{conversationID}/sla", cfg.Conversations.GetSLA)
			api.Post("/conversations/{conversationID}/finalize", cfg.Conversations.Finalize)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
