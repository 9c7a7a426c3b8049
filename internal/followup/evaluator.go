package followup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
)

// DefaultThresholdMinutes applies when a tenant has not configured a
// follow-up window.
const DefaultThresholdMinutes = 120

// NeedsFollowUp reports whether an agent has gone silent too long after the
// customer's last message. Pure and side-effect-free: the signal is derived
// on every call, never stored, so it cannot get stuck.
func NeedsFollowUp(lastPatientMessageAt, lastOutboundMessageAt *time.Time, thresholdMinutes int, now time.Time) bool {
	if lastPatientMessageAt == nil {
		return false
	}
	if lastOutboundMessageAt != nil && !lastOutboundMessageAt.Before(*lastPatientMessageAt) {
		return false
	}
	if thresholdMinutes <= 0 {
		thresholdMinutes = DefaultThresholdMinutes
	}
	return now.Sub(*lastPatientMessageAt) >= time.Duration(thresholdMinutes)*time.Minute
}

// ThresholdSource resolves the tenant's configured follow-up window in
// minutes.
type ThresholdSource interface {
	FollowUpMinutes(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// Evaluator applies the per-tenant threshold to conversation snapshots.
type Evaluator struct {
	thresholds ThresholdSource
	now        func() time.Time
}

// NewEvaluator creates an evaluator. A nil threshold source means every
// tenant uses the default window.
func NewEvaluator(thresholds ThresholdSource) *Evaluator {
	return &Evaluator{thresholds: thresholds, now: time.Now}
}

// Evaluate reports whether the conversation needs a follow-up nudge. Only
// queue states where the agent owes the customer a response qualify; a
// finished or awaiting-customer conversation never does. Threshold lookup
// failures fall back to the default window rather than suppressing the
// signal.
func (e *Evaluator) Evaluate(ctx context.Context, snap *conversation.Snapshot) bool {
	if snap == nil || !snap.QueueStatus.AgentResponsible() {
		return false
	}

	threshold := DefaultThresholdMinutes
	if e.thresholds != nil {
		if mins, err := e.thresholds.FollowUpMinutes(ctx, snap.TenantID); err == nil && mins > 0 {
			threshold = mins
		}
	}
	return NeedsFollowUp(snap.LastPatientMessageAt, snap.LastOutboundMessageAt, threshold, e.now().UTC())
}
