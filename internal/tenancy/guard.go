package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Capability names an operation class that requires authorization.
type Capability string

const (
	CapViewConversation     Capability = "conversation.view"
	CapFinalizeConversation Capability = "conversation.finalize"
	CapManageTimers         Capability = "sla.manage"
	CapManagePolicies       Capability = "sla.policies.manage"
)

// Role names granted to tenant members.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
)

var (
	// ErrNotFound is returned when the caller has no membership in the target
	// tenant or the target resource does not exist in it. Tenant mismatches
	// deliberately look identical to missing resources so callers cannot
	// probe for data in foreign tenants.
	ErrNotFound = errors.New("tenancy: not found")

	// ErrForbidden is returned when the caller belongs to the tenant but
	// lacks a role permitted for the capability.
	ErrForbidden = errors.New("tenancy: forbidden")
)

// permittedRoles maps each capability to the roles allowed to exercise it.
var permittedRoles = map[Capability][]string{
	CapViewConversation:     {RoleAdmin, RoleSupervisor, RoleAgent},
	CapFinalizeConversation: {RoleAdmin, RoleSupervisor, RoleAgent},
	CapManageTimers:         {RoleAdmin, RoleSupervisor},
	CapManagePolicies:       {RoleAdmin},
}

// MembershipLookup resolves the role set a user holds in a tenant.
type MembershipLookup interface {
	Roles(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error)
}

// ConversationTenantLookup resolves which tenant owns a conversation.
type ConversationTenantLookup interface {
	ConversationTenant(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error)
}

// Guard enforces tenant isolation and role checks for every core operation.
// The tenant id is always an explicit parameter, never inferred from the
// resource being accessed.
type Guard struct {
	memberships   MembershipLookup
	conversations ConversationTenantLookup
}

// NewGuard creates a tenant authorization guard.
func NewGuard(memberships MembershipLookup, conversations ConversationTenantLookup) *Guard {
	if memberships == nil {
		panic("tenancy: membership lookup required")
	}
	return &Guard{memberships: memberships, conversations: conversations}
}

// Authorize checks that the caller is a member of tenantID holding at least
// one role permitted for the capability.
func (g *Guard) Authorize(ctx context.Context, callerID, tenantID uuid.UUID, cap Capability) error {
	roles, err := g.memberships.Roles(ctx, callerID, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("tenancy: resolve membership: %w", err)
	}
	if len(roles) == 0 {
		return ErrNotFound
	}

	allowed, ok := permittedRoles[cap]
	if !ok {
		return ErrForbidden
	}
	for _, role := range roles {
		for _, want := range allowed {
			if role == want {
				return nil
			}
		}
	}
	return ErrForbidden
}

// AuthorizeConversation checks membership plus that the conversation belongs
// to the caller's tenant. A conversation in a foreign tenant reports
// ErrNotFound, exactly like a conversation that does not exist.
func (g *Guard) AuthorizeConversation(ctx context.Context, callerID, tenantID, conversationID uuid.UUID, cap Capability) error {
	if err := g.Authorize(ctx, callerID, tenantID, cap); err != nil {
		return err
	}
	if g.conversations == nil {
		return fmt.Errorf("tenancy: conversation lookup not configured")
	}
	owner, err := g.conversations.ConversationTenant(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("tenancy: resolve conversation tenant: %w", err)
	}
	if owner != tenantID {
		return ErrNotFound
	}
	return nil
}
