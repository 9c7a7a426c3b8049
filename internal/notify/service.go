package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/inbox-platform/internal/followup"
	"github.com/clinicdesk/inbox-platform/internal/sla"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// DefaultSuppressionSpan is how long a repeated alert for the same
// conversation stays silent after one was sent.
const DefaultSuppressionSpan = 15 * time.Minute

// RecipientDirectory resolves who receives an escalation. The assigned agent
// gets it when known; otherwise the tenant's escalation inbox does.
type RecipientDirectory interface {
	AgentEmail(ctx context.Context, tenantID, userID uuid.UUID) (address, name string, err error)
	EscalationEmail(ctx context.Context, tenantID uuid.UUID) (address string, err error)
}

// Service sends SLA breach and follow-up escalations, rate-limited per
// conversation so a noisy sweep does not flood an inbox.
type Service struct {
	email       EmailSender
	directory   RecipientDirectory
	redis       *redis.Client
	logger      *logging.Logger
	suppression time.Duration
}

// ServiceConfig wires an escalation service.
type ServiceConfig struct {
	Email       EmailSender
	Directory   RecipientDirectory
	Redis       *redis.Client
	Logger      *logging.Logger
	Suppression time.Duration
}

// NewService creates an escalation service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Email == nil {
		cfg.Email = NewStubEmailSender(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Suppression <= 0 {
		cfg.Suppression = DefaultSuppressionSpan
	}
	return &Service{
		email:       cfg.Email,
		directory:   cfg.Directory,
		redis:       cfg.Redis,
		logger:      cfg.Logger,
		suppression: cfg.Suppression,
	}
}

// NotifyBreach emails the responsible agent (or the tenant escalation inbox)
// that a conversation blew its response budget. Satisfies sla.BreachNotifier.
func (s *Service) NotifyBreach(ctx context.Context, b sla.Breach) error {
	ok, err := s.claim(ctx, b.TenantID, b.ConversationID, "breach")
	if err != nil {
		s.logger.Error("notify: suppression check failed, sending anyway", "error", err)
	} else if !ok {
		s.logger.Debug("notify: breach alert suppressed",
			"tenant_id", b.TenantID, "conversation_id", b.ConversationID)
		return nil
	}

	to, toName, err := s.recipient(ctx, b.TenantID, b.AssignedUserID)
	if err != nil {
		return fmt.Errorf("notify: resolve breach recipient: %w", err)
	}

	overdue := b.BreachedAt.Sub(b.DueAt).Round(time.Second)
	msg := EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: "Response SLA breached",
		Body: fmt.Sprintf(
			"A conversation breached its response SLA.\n\nConversation: %s\nDue at: %s\nBreached at: %s (%s past due)\n\nPlease respond to the customer as soon as possible.",
			b.ConversationID, b.DueAt.Format(time.RFC3339), b.BreachedAt.Format(time.RFC3339), overdue),
	}
	return s.email.Send(ctx, msg)
}

// NotifyFollowUp nudges the agent about a silent conversation. Satisfies
// followup.Notifier.
func (s *Service) NotifyFollowUp(ctx context.Context, alert followup.Alert) error {
	ok, err := s.claim(ctx, alert.TenantID, alert.ConversationID, "followup")
	if err != nil {
		s.logger.Error("notify: suppression check failed, sending anyway", "error", err)
	} else if !ok {
		s.logger.Debug("notify: follow-up alert suppressed",
			"tenant_id", alert.TenantID, "conversation_id", alert.ConversationID)
		return nil
	}

	to, toName, err := s.recipient(ctx, alert.TenantID, alert.AssignedUserID)
	if err != nil {
		return fmt.Errorf("notify: resolve follow-up recipient: %w", err)
	}

	waiting := time.Since(alert.LastMessageAt).Round(time.Minute)
	msg := EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: "Customer waiting for a follow-up",
		Body: fmt.Sprintf(
			"A customer has been waiting %s since their last message.\n\nConversation: %s\nLast customer message: %s\n\nSend a follow-up to keep the conversation alive.",
			waiting, alert.ConversationID, alert.LastMessageAt.Format(time.RFC3339)),
	}
	return s.email.Send(ctx, msg)
}

// claim takes the per-conversation suppression slot. Returns true when this
// caller should send. Without Redis every alert sends.
func (s *Service) claim(ctx context.Context, tenantID, conversationID uuid.UUID, kind string) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	key := fmt.Sprintf("escalation:%s:%s:%s", kind, tenantID, conversationID)
	return s.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.suppression).Result()
}

func (s *Service) recipient(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (string, string, error) {
	if s.directory == nil {
		return "", "", fmt.Errorf("notify: no recipient directory configured")
	}
	if userID != nil {
		address, name, err := s.directory.AgentEmail(ctx, tenantID, *userID)
		if err == nil && address != "" {
			return address, name, nil
		}
		if err != nil {
			s.logger.Warn("notify: agent email lookup failed, falling back to tenant inbox",
				"tenant_id", tenantID, "user_id", userID, "error", err)
		}
	}
	address, err := s.directory.EscalationEmail(ctx, tenantID)
	if err != nil {
		return "", "", err
	}
	return address, "", nil
}

var (
	_ sla.BreachNotifier = (*Service)(nil)
	_ followup.Notifier  = (*Service)(nil)
)
