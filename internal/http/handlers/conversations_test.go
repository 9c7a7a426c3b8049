package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
	"github.com/clinicdesk/inbox-platform/internal/followup"
	"github.com/clinicdesk/inbox-platform/internal/http/middleware"
	"github.com/clinicdesk/inbox-platform/internal/sla"
	"github.com/clinicdesk/inbox-platform/internal/tenancy"
)

const testAgentSecret = "api-test-secret"

type fakeEngine struct {
	view       *sla.TimerView
	viewErr    error
	finalized  []uuid.UUID
	finalizErr error
}

func (f *fakeEngine) View(_ context.Context, _, _ uuid.UUID) (*sla.TimerView, error) {
	return f.view, f.viewErr
}

func (f *fakeEngine) OnConversationFinalized(_ context.Context, _, conversationID uuid.UUID) error {
	if f.finalizErr != nil {
		return f.finalizErr
	}
	f.finalized = append(f.finalized, conversationID)
	return nil
}

type fakeGuard struct {
	err  error
	caps []tenancy.Capability
}

func (f *fakeGuard) AuthorizeConversation(_ context.Context, _, _, _ uuid.UUID, cap tenancy.Capability) error {
	f.caps = append(f.caps, cap)
	return f.err
}

type fakeSnapshots struct {
	snap *conversation.Snapshot
}

func (f *fakeSnapshots) Get(_ context.Context, _, _ uuid.UUID) (*conversation.Snapshot, error) {
	if f.snap == nil {
		return nil, tenancy.ErrNotFound
	}
	return f.snap, nil
}

type apiFixture struct {
	router         *chi.Mux
	engine         *fakeEngine
	guard          *fakeGuard
	snapshots      *fakeSnapshots
	tenantID       uuid.UUID
	userID         uuid.UUID
	conversationID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		engine:         &fakeEngine{view: &sla.TimerView{State: sla.StateNone}},
		guard:          &fakeGuard{},
		snapshots:      &fakeSnapshots{},
		tenantID:       uuid.New(),
		userID:         uuid.New(),
		conversationID: uuid.New(),
	}
	h := NewConversationHandlers(f.engine, f.guard, f.snapshots, followup.NewEvaluator(nil), nil)

	f.router = chi.NewRouter()
	f.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.AgentJWT(testAgentSecret))
		r.Get("/conversations/{conversationID}/sla", h.GetSLA)
		r.Post("/conversations/{conversationID}/finalize", h.Finalize)
	})
	return f
}

func (f *apiFixture) token(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AgentClaims{
		TenantID: f.tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   f.userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testAgentSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetSLA(t *testing.T) {
	f := newAPIFixture(t)
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	due := started.Add(time.Hour)
	remaining := int64(1200)
	f.engine.view = &sla.TimerView{
		State:            sla.StateRunning,
		StartedAt:        &started,
		DueAt:            &due,
		RemainingSeconds: &remaining,
		AtRisk:           true,
	}
	lastPatient := time.Now().Add(-3 * time.Hour)
	f.snapshots.snap = &conversation.Snapshot{
		ID:                   f.conversationID,
		TenantID:             f.tenantID,
		QueueStatus:          conversation.StatusAwaitingService,
		LastPatientMessageAt: &lastPatient,
	}

	rec := f.do(t, http.MethodGet, "/api/conversations/"+f.conversationID.String()+"/sla")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		State            string `json:"state"`
		RemainingSeconds *int64 `json:"remaining_seconds"`
		AtRisk           bool   `json:"at_risk"`
		NeedsFollowUp    bool   `json:"needs_follow_up"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.State != "running" || !resp.AtRisk {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RemainingSeconds == nil || *resp.RemainingSeconds != 1200 {
		t.Fatalf("expected 1200s remaining, got %v", resp.RemainingSeconds)
	}
	if !resp.NeedsFollowUp {
		t.Fatal("3 hours of silence must need follow-up")
	}
	if len(f.guard.caps) != 1 || f.guard.caps[0] != tenancy.CapViewConversation {
		t.Fatalf("expected view capability check, got %v", f.guard.caps)
	}
}

func TestGetSLANoTimer(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/conversations/"+f.conversationID.String()+"/sla")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp slaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.State != "none" {
		t.Fatalf("expected state none, got %s", resp.State)
	}
}

func TestGetSLAForeignConversationIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.guard.err = tenancy.ErrNotFound

	rec := f.do(t, http.MethodGet, "/api/conversations/"+f.conversationID.String()+"/sla")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign conversation must look missing, got %d", rec.Code)
	}
}

func TestGetSLARoleMissIsForbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.guard.err = tenancy.ErrForbidden

	rec := f.do(t, http.MethodGet, "/api/conversations/"+f.conversationID.String()+"/sla")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for role miss inside own tenant, got %d", rec.Code)
	}
}

func TestGetSLABadConversationID(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/conversations/not-a-uuid/sla")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSLAUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+f.conversationID.String()+"/sla", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestFinalize(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/conversations/"+f.conversationID.String()+"/finalize")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.engine.finalized) != 1 || f.engine.finalized[0] != f.conversationID {
		t.Fatalf("engine not told to finalize: %v", f.engine.finalized)
	}
	if len(f.guard.caps) != 1 || f.guard.caps[0] != tenancy.CapFinalizeConversation {
		t.Fatalf("expected finalize capability check, got %v", f.guard.caps)
	}
}

func TestFinalizeForeignConversationIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.guard.err = tenancy.ErrNotFound

	rec := f.do(t, http.MethodPost, "/api/conversations/"+f.conversationID.String()+"/finalize")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(f.engine.finalized) != 0 {
		t.Fatal("engine reached despite failed authorization")
	}
}
