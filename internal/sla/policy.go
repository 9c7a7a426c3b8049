package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Policy bounds, matching what tenant administrators may configure.
const (
	MinResponseSeconds    = 30
	MaxResponseSeconds    = 86400
	DefaultWarningPercent = 80
	MinWarningPercent     = 1
	MaxWarningPercent     = 99
)

// Policy is the response-time contract for a (tenant, funnel-stage,
// contact-status) combination. Nil StageID or ContactStatus means the policy
// applies regardless of that dimension.
type Policy struct {
	ID                      uuid.UUID
	TenantID                uuid.UUID
	StageID                 *uuid.UUID
	ContactStatus           *string
	ResponseSeconds         int
	WarningThresholdPercent int
}

// Budget returns the response-time budget as a duration.
func (p Policy) Budget() time.Duration {
	return time.Duration(p.ResponseSeconds) * time.Second
}

// Validate checks configured bounds.
func (p Policy) Validate() error {
	if p.ResponseSeconds < MinResponseSeconds || p.ResponseSeconds > MaxResponseSeconds {
		return fmt.Errorf("sla: response_seconds %d out of range [%d, %d]",
			p.ResponseSeconds, MinResponseSeconds, MaxResponseSeconds)
	}
	if p.WarningThresholdPercent < MinWarningPercent || p.WarningThresholdPercent > MaxWarningPercent {
		return fmt.Errorf("sla: warning_threshold_percent %d out of range [%d, %d]",
			p.WarningThresholdPercent, MinWarningPercent, MaxWarningPercent)
	}
	return nil
}

// PolicyRepository lists the policy rows configured for a tenant. Policies
// are created by tenant administrators elsewhere; the timer engine only
// reads them.
type PolicyRepository interface {
	ListPolicies(ctx context.Context, tenantID uuid.UUID) ([]Policy, error)
}

// Resolver selects the applicable policy for a conversation.
type Resolver struct {
	policies PolicyRepository
}

// NewResolver creates a policy resolver.
func NewResolver(policies PolicyRepository) *Resolver {
	if policies == nil {
		panic("sla: policy repository required")
	}
	return &Resolver{policies: policies}
}

// Resolve returns the applicable policy, or nil when no row matches. Absence
// of an SLA is a valid, non-error state: the engine simply starts no timer.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, stageID *uuid.UUID, contactStatus string) (*Policy, error) {
	policies, err := r.policies.ListPolicies(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sla: list policies: %w", err)
	}
	return pickPolicy(policies, stageID, contactStatus), nil
}

// pickPolicy applies the matching precedence: exact stage beats a
// stage-agnostic policy, and within equal stage-specificity an exact contact
// status beats a status-agnostic one. Equal-specificity duplicates are a
// configuration error; the lowest id wins so resolution stays deterministic.
func pickPolicy(policies []Policy, stageID *uuid.UUID, contactStatus string) *Policy {
	matchers := []func(p Policy) bool{
		func(p Policy) bool {
			return stageID != nil && contactStatus != "" &&
				matchesStage(p, stageID) && matchesStatus(p, contactStatus)
		},
		func(p Policy) bool {
			return stageID != nil && matchesStage(p, stageID) && p.ContactStatus == nil
		},
		func(p Policy) bool {
			return contactStatus != "" && p.StageID == nil && matchesStatus(p, contactStatus)
		},
		func(p Policy) bool {
			return p.StageID == nil && p.ContactStatus == nil
		},
	}

	for _, matches := range matchers {
		var best *Policy
		for i := range policies {
			p := &policies[i]
			if !matches(*p) {
				continue
			}
			if best == nil || p.ID.String() < best.ID.String() {
				best = p
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func matchesStage(p Policy, stageID *uuid.UUID) bool {
	return p.StageID != nil && *p.StageID == *stageID
}

func matchesStatus(p Policy, contactStatus string) bool {
	return p.ContactStatus != nil && *p.ContactStatus == contactStatus
}
