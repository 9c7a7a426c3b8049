package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/events"
	observemetrics "github.com/clinicdesk/inbox-platform/internal/observability/metrics"
	"github.com/clinicdesk/inbox-platform/internal/tenancy"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// EventInserter persists inbound events exactly once per fingerprint.
type EventInserter interface {
	Insert(ctx context.Context, evt events.InboundEvent) (bool, error)
}

// RateLimiter gates ingestion per tenant endpoint.
type RateLimiter interface {
	Allow(key string) bool
}

// Gateway orchestrates verification, rate limiting, and idempotent storage
// for inbound provider callbacks.
type Gateway struct {
	verifier    *SignatureVerifier
	verifyToken string
	store       EventInserter
	limiter     RateLimiter
	onMessage   func(ctx context.Context, tenantID uuid.UUID, msg ParsedMessage)
	logger      *logging.Logger
	metrics     *observemetrics.WebhookMetrics
}

// GatewayConfig wires a Gateway.
type GatewayConfig struct {
	Verifier    *SignatureVerifier
	VerifyToken string
	Store       EventInserter
	Limiter     RateLimiter
	// OnMessage is called once per parsed inbound message of a newly stored
	// event. Replayed deliveries never re-trigger it.
	OnMessage func(ctx context.Context, tenantID uuid.UUID, msg ParsedMessage)
	Logger    *logging.Logger
	Metrics   *observemetrics.WebhookMetrics
}

// NewGateway creates a webhook gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Gateway{
		verifier:    cfg.Verifier,
		verifyToken: cfg.VerifyToken,
		store:       cfg.Store,
		limiter:     cfg.Limiter,
		onMessage:   cfg.OnMessage,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// HandleVerification handles the GET webhook verification challenge from the
// provider. One-shot handshake, no state.
func (g *Gateway) HandleVerification(w http.ResponseWriter, r *http.Request) {
	if g.verifyToken == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == g.verifyToken && challenge != "" {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIngest handles POST webhook deliveries. Replays with identical bytes
// are accepted without duplicate side effects; nothing is persisted for a
// rejected signature.
func (g *Gateway) HandleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !g.verifier.Configured() {
		g.metrics.ObserveIngest("not_configured")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "whatsapp_not_configured"})
		return
	}

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		g.metrics.ObserveIngest("unknown_tenant")
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		g.metrics.ObserveIngest("missing_body")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing_raw_body"})
		return
	}

	if g.limiter != nil && !g.limiter.Allow(tenantID.String()) {
		g.metrics.ObserveIngest("rate_limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate_limited"})
		return
	}

	if err := g.verifier.Verify(body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		// Full reason stays in the log; the caller only sees a generic 401.
		g.logger.Warn("webhook signature rejected", "tenant_id", tenantID, "error", err)
		g.metrics.ObserveIngest("unauthorized")
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_signature"})
		return
	}

	inserted, err := g.store.Insert(r.Context(), events.InboundEvent{
		TenantID:    tenantID,
		Fingerprint: events.Fingerprint(body),
		RawPayload:  body,
	})
	if err != nil {
		g.logger.Error("webhook event insert failed", "tenant_id", tenantID, "error", err)
		g.metrics.ObserveIngest("persist_failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "persist_failed"})
		return
	}

	if inserted {
		g.dispatch(r.Context(), tenantID, body)
		g.metrics.ObserveIngest("accepted")
	} else {
		g.metrics.ObserveIngest("duplicate")
	}
	g.metrics.ObserveIngestLatency(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// dispatch forwards parsed messages downstream with the endpoint's tenant
// stamped on the context. Parse failures after the event is stored are
// logged, never surfaced as non-2xx: the provider must not retry an
// already-persisted delivery.
func (g *Gateway) dispatch(ctx context.Context, tenantID uuid.UUID, body []byte) {
	if g.onMessage == nil {
		return
	}
	ctx = tenancy.WithTenant(ctx, tenantID)
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		g.logger.Warn("stored webhook payload is not parseable", "tenant_id", tenantID, "error", err)
		return
	}
	for _, msg := range ParseWebhookEvent(event) {
		g.onMessage(ctx, tenantID, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
