package sla

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State of a conversation's SLA timer.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateBreached  State = "breached"
	StateCompleted State = "completed"
)

var (
	// ErrInvalidTransition is returned when a transition is requested from a
	// state that does not allow it.
	ErrInvalidTransition = errors.New("sla: invalid timer transition")
)

// Timer is one active or historical countdown attached to a conversation.
// At most one timer per conversation is active (neither breached nor
// completed) at a time.
type Timer struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	TenantID       uuid.UUID
	PolicyID       uuid.UUID

	StartedAt   time.Time
	DueAt       time.Time
	PausedAt    *time.Time
	BreachedAt  *time.Time
	CompletedAt *time.Time

	// BudgetSeconds and WarningPercent are copied from the policy at start
	// so the at-risk calculation survives later policy edits.
	BudgetSeconds  int
	WarningPercent int

	// Version guards concurrent writers: updates are conditional on the
	// version read, and every successful write increments it.
	Version int64
}

// StartTimer creates a fresh Running timer for a conversation.
func StartTimer(conversationID, tenantID uuid.UUID, policy Policy, now time.Time) *Timer {
	return &Timer{
		ID:             uuid.New(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		PolicyID:       policy.ID,
		StartedAt:      now,
		DueAt:          now.Add(policy.Budget()),
		BudgetSeconds:  policy.ResponseSeconds,
		WarningPercent: policy.WarningThresholdPercent,
	}
}

// State derives the current lifecycle state from the persisted fields.
func (t *Timer) State() State {
	switch {
	case t.BreachedAt != nil:
		return StateBreached
	case t.CompletedAt != nil:
		return StateCompleted
	case t.PausedAt != nil:
		return StatePaused
	default:
		return StateRunning
	}
}

// Active reports whether the timer may still transition.
func (t *Timer) Active() bool {
	return t.BreachedAt == nil && t.CompletedAt == nil
}

// Pause records that responsibility shifted to the customer. The remaining
// budget at this instant is preserved: it is exactly DueAt - now, and Resume
// re-applies it instead of granting a fresh budget.
func (t *Timer) Pause(now time.Time) error {
	if t.State() != StateRunning {
		return ErrInvalidTransition
	}
	paused := now
	t.PausedAt = &paused
	return nil
}

// Resume restarts the countdown with the budget left when the timer paused.
// DueAt moves forward by exactly the paused span, so paused time never
// accrues against the agent and DueAt never decreases.
func (t *Timer) Resume(now time.Time) error {
	if t.State() != StatePaused {
		return ErrInvalidTransition
	}
	remaining := t.DueAt.Sub(*t.PausedAt)
	if remaining < 0 {
		remaining = 0
	}
	t.DueAt = now.Add(remaining)
	t.PausedAt = nil
	return nil
}

// CheckBreach eagerly detects breach: a Running timer past DueAt becomes
// Breached. BreachedAt is set exactly once and is terminal. Returns true if
// this call performed the transition.
func (t *Timer) CheckBreach(now time.Time) bool {
	if t.State() != StateRunning {
		return false
	}
	if now.Before(t.DueAt) {
		return false
	}
	breached := now
	t.BreachedAt = &breached
	return true
}

// Complete finalizes a Running or Paused timer when the conversation is
// closed before breach. Terminal.
func (t *Timer) Complete(now time.Time) error {
	state := t.State()
	if state != StateRunning && state != StatePaused {
		return ErrInvalidTransition
	}
	completed := now
	t.CompletedAt = &completed
	return nil
}

// Remaining returns the budget left. Zero or negative means the timer is due.
// For a paused timer the remainder is frozen at the pause instant.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if t.PausedAt != nil {
		return t.DueAt.Sub(*t.PausedAt)
	}
	return t.DueAt.Sub(now)
}

// AtRisk reports whether a Running timer has consumed at least
// WarningPercent of its original budget. Derived read-only state for UI
// surfaces; never persisted.
func (t *Timer) AtRisk(now time.Time) bool {
	if t.State() != StateRunning {
		return false
	}
	budget := time.Duration(t.BudgetSeconds) * time.Second
	if budget <= 0 {
		return false
	}
	elapsed := budget - t.Remaining(now)
	return elapsed*100 >= budget*time.Duration(t.WarningPercent)
}
