package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
	observemetrics "github.com/clinicdesk/inbox-platform/internal/observability/metrics"
	"github.com/clinicdesk/inbox-platform/internal/tenancy"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// TimerStore is the persistence surface the engine drives.
type TimerStore interface {
	ActiveTimer(ctx context.Context, tenantID, conversationID uuid.UUID) (*Timer, error)
	InsertTimer(ctx context.Context, t *Timer) error
	UpdateTimer(ctx context.Context, t *Timer) error
	InsertEvent(ctx context.Context, ev Event) error
}

// ConversationReader loads the snapshot the engine needs to resolve policies
// and enrich audit events.
type ConversationReader interface {
	Get(ctx context.Context, tenantID, conversationID uuid.UUID) (*conversation.Snapshot, error)
}

// Engine owns the lifecycle of per-conversation response-time countdowns.
// All transitions for one conversation serialize through a per-conversation
// lock; the store's version check catches racing writers in other processes.
type Engine struct {
	store         TimerStore
	resolver      *Resolver
	conversations ConversationReader
	locks         *conversationLocks
	metrics       *observemetrics.SLAMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Store         TimerStore
	Resolver      *Resolver
	Conversations ConversationReader
	Metrics       *observemetrics.SLAMetrics
	Logger        *logging.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewEngine creates a timer engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Store == nil {
		panic("sla: timer store required")
	}
	if cfg.Resolver == nil {
		panic("sla: policy resolver required")
	}
	if cfg.Conversations == nil {
		panic("sla: conversation reader required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:         cfg.Store,
		resolver:      cfg.Resolver,
		conversations: cfg.Conversations,
		locks:         newConversationLocks(),
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// OnInboundMessage reacts to a customer message: it starts a countdown when
// none is active, resumes a paused one, and otherwise leaves the running
// countdown alone (the clock started at the first unanswered message). A
// running countdown found past due breaches and a fresh one starts for the
// message that just arrived. Replays are no-ops, so queue redelivery is safe.
func (e *Engine) OnInboundMessage(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	t, err := e.store.ActiveTimer(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	now := e.now().UTC()

	if t != nil {
		switch t.State() {
		case StatePaused:
			if err := t.Resume(now); err != nil {
				return err
			}
			if err := e.store.UpdateTimer(ctx, t); err != nil {
				return err
			}
			e.metrics.ObserveTransition("resume")
			return nil
		case StateRunning:
			if t.CheckBreach(now) {
				if err := e.persistBreach(ctx, t, now); err != nil {
					return err
				}
				// The message that exposed the breach is itself still
				// unanswered: open a fresh countdown for it.
				return e.startIfCovered(ctx, tenantID, conversationID, now)
			}
			return nil
		}
		return nil
	}

	return e.startIfCovered(ctx, tenantID, conversationID, now)
}

// OnOutboundMessage reacts to a qualifying agent reply: the running countdown
// pauses with its remaining budget preserved, and a response audit event is
// recorded. A countdown already past due breaches instead; breached timers
// never pause.
func (e *Engine) OnOutboundMessage(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	t, err := e.store.ActiveTimer(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if t == nil || t.State() == StatePaused {
		return nil
	}
	now := e.now().UTC()

	if t.CheckBreach(now) {
		return e.persistBreach(ctx, t, now)
	}

	if err := t.Pause(now); err != nil {
		return err
	}
	if err := e.store.UpdateTimer(ctx, t); err != nil {
		return err
	}
	e.metrics.ObserveTransition("pause")

	responseSeconds := int(now.Sub(t.StartedAt).Seconds())
	e.appendEvent(ctx, t, Event{
		Type:            EventResponse,
		OccurredAt:      now,
		ResponseSeconds: &responseSeconds,
	})
	return nil
}

// OnConversationFinalized completes the active timer, if any. A countdown
// already past due breaches instead of completing.
func (e *Engine) OnConversationFinalized(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	t, err := e.store.ActiveTimer(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	now := e.now().UTC()

	if t.CheckBreach(now) {
		return e.persistBreach(ctx, t, now)
	}
	if err := t.Complete(now); err != nil {
		return err
	}
	if err := e.store.UpdateTimer(ctx, t); err != nil {
		return err
	}
	e.metrics.ObserveTransition("complete")
	return nil
}

// OnConversationReopened supersedes whatever timer exists and starts a fresh
// countdown under the currently applicable policy.
func (e *Engine) OnConversationReopened(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	t, err := e.store.ActiveTimer(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	now := e.now().UTC()

	if t != nil && t.Active() {
		if err := t.Complete(now); err != nil {
			return err
		}
		if err := e.store.UpdateTimer(ctx, t); err != nil {
			return err
		}
		e.metrics.ObserveTransition("supersede")
	}

	return e.startIfCovered(ctx, tenantID, conversationID, now)
}

// TimerView is the derived, read-only picture of a conversation's countdown.
type TimerView struct {
	State            State      `json:"state"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
	AtRisk           bool       `json:"at_risk"`
}

// StateNone marks a conversation without an active countdown, a valid state.
const StateNone State = "none"

// View reads the conversation's timer, eagerly recomputing breach from
// due_at versus the current clock so a stale sweep never yields an
// incorrectly "still running" timer.
func (e *Engine) View(ctx context.Context, tenantID, conversationID uuid.UUID) (*TimerView, error) {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	t, err := e.store.ActiveTimer(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &TimerView{State: StateNone}, nil
	}
	now := e.now().UTC()

	if t.CheckBreach(now) {
		if err := e.persistBreach(ctx, t, now); err != nil {
			// The breach still reflects in this response even if another
			// writer won the persistence race.
			if !errors.Is(err, ErrVersionConflict) {
				return nil, err
			}
		}
	}

	remaining := int64(t.Remaining(now).Seconds())
	view := &TimerView{
		State:            t.State(),
		StartedAt:        &t.StartedAt,
		DueAt:            &t.DueAt,
		RemainingSeconds: &remaining,
		AtRisk:           t.AtRisk(now),
	}
	return view, nil
}

// startIfCovered starts a countdown when the conversation exists, is not
// finished, and a policy resolves. "No policy" means no timer, not an error.
func (e *Engine) startIfCovered(ctx context.Context, tenantID, conversationID uuid.UUID, now time.Time) error {
	snap, err := e.conversations.Get(ctx, tenantID, conversationID)
	if err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			e.logger.Debug("sla: conversation not found, no timer started",
				"tenant_id", tenantID, "conversation_id", conversationID)
			return nil
		}
		return err
	}
	if snap.QueueStatus == conversation.StatusFinished {
		return nil
	}

	policy, err := e.resolver.Resolve(ctx, tenantID, snap.CurrentStageID, snap.ContactStatus)
	if err != nil {
		return err
	}
	if policy == nil {
		return nil
	}

	t := StartTimer(conversationID, tenantID, *policy, now)
	if err := e.store.InsertTimer(ctx, t); err != nil {
		return err
	}
	e.metrics.ObserveTransition("start")
	return nil
}

func (e *Engine) persistBreach(ctx context.Context, t *Timer, now time.Time) error {
	if err := e.store.UpdateTimer(ctx, t); err != nil {
		return fmt.Errorf("sla: persist breach: %w", err)
	}
	e.metrics.ObserveTransition("breach")
	e.metrics.ObserveBreach()
	e.appendEvent(ctx, t, Event{Type: EventBreach, OccurredAt: now})
	return nil
}

// appendEvent writes the audit row, enriched with the assigned agent when
// the snapshot is available. Audit failures are logged, never fatal for the
// transition that already committed.
func (e *Engine) appendEvent(ctx context.Context, t *Timer, ev Event) {
	ev.TenantID = t.TenantID
	ev.ConversationID = t.ConversationID
	ev.StartedAt = t.StartedAt
	ev.DueAt = t.DueAt
	ev.PolicyID = t.PolicyID

	if snap, err := e.conversations.Get(ctx, t.TenantID, t.ConversationID); err == nil {
		ev.AssignedUserID = snap.AssignedUserID
	}

	if err := e.store.InsertEvent(ctx, ev); err != nil {
		e.logger.Error("sla: append audit event failed",
			"tenant_id", t.TenantID, "conversation_id", t.ConversationID,
			"type", ev.Type, "error", err)
	}
}
