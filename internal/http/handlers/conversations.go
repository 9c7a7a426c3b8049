// Package handlers holds the agent-facing API endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
	"github.com/clinicdesk/inbox-platform/internal/followup"
	"github.com/clinicdesk/inbox-platform/internal/http/middleware"
	"github.com/clinicdesk/inbox-platform/internal/sla"
	"github.com/clinicdesk/inbox-platform/internal/tenancy"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// TimerEngine is the subset of the SLA engine the handlers call.
type TimerEngine interface {
	View(ctx context.Context, tenantID, conversationID uuid.UUID) (*sla.TimerView, error)
	OnConversationFinalized(ctx context.Context, tenantID, conversationID uuid.UUID) error
}

// Authorizer guards every conversation-scoped operation.
type Authorizer interface {
	AuthorizeConversation(ctx context.Context, callerID, tenantID, conversationID uuid.UUID, cap tenancy.Capability) error
}

// SnapshotReader loads the conversation state the follow-up evaluator needs.
type SnapshotReader interface {
	Get(ctx context.Context, tenantID, conversationID uuid.UUID) (*conversation.Snapshot, error)
}

// ConversationHandlers exposes the SLA view and finalize endpoints.
type ConversationHandlers struct {
	engine        TimerEngine
	guard         Authorizer
	conversations SnapshotReader
	followUp      *followup.Evaluator
	logger        *logging.Logger
}

// NewConversationHandlers wires the conversation endpoints.
func NewConversationHandlers(engine TimerEngine, guard Authorizer, conversations SnapshotReader, followUp *followup.Evaluator, logger *logging.Logger) *ConversationHandlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationHandlers{
		engine:        engine,
		guard:         guard,
		conversations: conversations,
		followUp:      followUp,
		logger:        logger,
	}
}

// slaResponse is the wire shape of the timer view.
type slaResponse struct {
	State            string     `json:"state"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
	AtRisk           bool       `json:"at_risk"`
	NeedsFollowUp    bool       `json:"needs_follow_up"`
}

// GetSLA handles GET /api/conversations/{conversationID}/sla. The breach
// state is recomputed eagerly from the clock on this read.
func (h *ConversationHandlers) GetSLA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, tenantID, conversationID, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	err := h.guard.AuthorizeConversation(ctx, callerID, tenantID, conversationID, tenancy.CapViewConversation)
	if err != nil {
		h.writeAuthzError(w, r, err)
		return
	}

	view, err := h.engine.View(ctx, tenantID, conversationID)
	if err != nil {
		h.logger.Error("sla view failed", "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := slaResponse{
		State:            string(view.State),
		StartedAt:        view.StartedAt,
		DueAt:            view.DueAt,
		RemainingSeconds: view.RemainingSeconds,
		AtRisk:           view.AtRisk,
	}
	if h.followUp != nil {
		if snap, err := h.conversations.Get(ctx, tenantID, conversationID); err == nil {
			resp.NeedsFollowUp = h.followUp.Evaluate(ctx, snap)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Finalize handles POST /api/conversations/{conversationID}/finalize: the
// conversation is closed and its active timer completed (or breached if
// already past due).
func (h *ConversationHandlers) Finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, tenantID, conversationID, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	err := h.guard.AuthorizeConversation(ctx, callerID, tenantID, conversationID, tenancy.CapFinalizeConversation)
	if err != nil {
		h.writeAuthzError(w, r, err)
		return
	}

	if err := h.engine.OnConversationFinalized(ctx, tenantID, conversationID); err != nil {
		h.logger.Error("finalize failed", "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolveRequest pulls the caller from the auth context, the tenant from
// the tenancy context, and the conversation from the URL.
func (h *ConversationHandlers) resolveRequest(w http.ResponseWriter, r *http.Request) (callerID, tenantID, conversationID uuid.UUID, ok bool) {
	identity, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	tenantID, ok = tenancy.TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	return identity.UserID, tenantID, conversationID, true
}

// writeAuthzError maps guard failures to responses. Tenant mismatches and
// missing conversations both surface as 404 so foreign resources are never
// confirmed to exist.
func (h *ConversationHandlers) writeAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenancy.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, tenancy.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.logger.Error("authorization check failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
