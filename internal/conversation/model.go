package conversation

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the conversation's place in the service queue. Transitions
// are driven by message direction and agent action in the surrounding CRUD
// layer; the SLA engine only observes them.
type QueueStatus string

const (
	StatusAwaitingService  QueueStatus = "awaiting_service"
	StatusInService        QueueStatus = "in_service"
	StatusAwaitingCustomer QueueStatus = "awaiting_customer"
	StatusFinished         QueueStatus = "finished"
)

// AgentResponsible reports whether the agent currently owes the customer a
// response in this queue state.
func (s QueueStatus) AgentResponsible() bool {
	return s == StatusAwaitingService || s == StatusInService
}

// Snapshot is the read-only view of a conversation consumed by the SLA
// engine and follow-up evaluator. The conversation row itself is owned by
// the inbox CRUD layer.
type Snapshot struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	ContactID             uuid.UUID
	AssignedUserID        *uuid.UUID
	CurrentStageID        *uuid.UUID
	ContactStatus         string
	QueueStatus           QueueStatus
	LastPatientMessageAt  *time.Time
	LastOutboundMessageAt *time.Time
	LastStageMovedAt      *time.Time
}
