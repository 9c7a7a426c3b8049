package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StaticDirectory routes every escalation to one configured inbox. Used
// until per-agent contact details are provisioned for a deployment.
type StaticDirectory struct {
	Address string
}

// AgentEmail always defers to the escalation inbox.
func (d StaticDirectory) AgentEmail(_ context.Context, _, _ uuid.UUID) (string, string, error) {
	return "", "", fmt.Errorf("notify: no per-agent directory configured")
}

// EscalationEmail returns the configured inbox.
func (d StaticDirectory) EscalationEmail(_ context.Context, _ uuid.UUID) (string, error) {
	if d.Address == "" {
		return "", fmt.Errorf("notify: escalation email not configured")
	}
	return d.Address, nil
}

var _ RecipientDirectory = StaticDirectory{}
