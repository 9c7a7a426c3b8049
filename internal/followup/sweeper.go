package followup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// Alert describes a conversation whose customer has been waiting past the
// tenant's follow-up window.
type Alert struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	AssignedUserID *uuid.UUID
	LastMessageAt  time.Time
}

// Notifier delivers follow-up alerts to agents.
type Notifier interface {
	NotifyFollowUp(ctx context.Context, alert Alert) error
}

// SilentLister pages through open conversations with an unanswered customer
// message older than the cutoff.
type SilentLister interface {
	ListSilentSince(ctx context.Context, cutoff time.Time, limit int) ([]conversation.Snapshot, error)
}

// SweeperConfig wires a follow-up sweeper.
type SweeperConfig struct {
	Store     SilentLister
	Evaluator *Evaluator
	Notifier  Notifier
	Logger    *logging.Logger
	// MinWindow is the smallest follow-up window any tenant may configure.
	// The store query uses it as the candidate cutoff; each candidate is
	// then re-checked against its own tenant's window.
	MinWindow time.Duration
	BatchSize int
	Now       func() time.Time
}

// Sweeper periodically scans for silent conversations and alerts the
// responsible agents. The needs-follow-up signal itself stays derived on
// read; the sweep only adds the push notification on top.
type Sweeper struct {
	store     SilentLister
	evaluator *Evaluator
	notifier  Notifier
	logger    *logging.Logger
	minWindow time.Duration
	batch     int
	now       func() time.Time
}

// NewSweeper creates a follow-up sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Store == nil {
		panic("followup: silent lister required")
	}
	if cfg.Evaluator == nil {
		panic("followup: evaluator required")
	}
	if cfg.Notifier == nil {
		panic("followup: notifier required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:     cfg.Store,
		evaluator: cfg.Evaluator,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		minWindow: cfg.MinWindow,
		batch:     cfg.BatchSize,
		now:       cfg.Now,
	}
}

// ProcessSilent alerts agents about conversations past their tenant's
// follow-up window. Returns the number of alerts attempted.
func (s *Sweeper) ProcessSilent(ctx context.Context) (int, error) {
	now := s.now().UTC()
	candidates, err := s.store.ListSilentSince(ctx, now.Add(-s.minWindow), s.batch)
	if err != nil {
		return 0, err
	}

	alerted := 0
	for i := range candidates {
		snap := &candidates[i]
		if !s.evaluator.Evaluate(ctx, snap) {
			continue
		}
		alert := Alert{
			TenantID:       snap.TenantID,
			ConversationID: snap.ID,
			AssignedUserID: snap.AssignedUserID,
			LastMessageAt:  *snap.LastPatientMessageAt,
		}
		if err := s.notifier.NotifyFollowUp(ctx, alert); err != nil {
			s.logger.Error("follow-up sweep: notification failed",
				"conversation_id", snap.ID, "error", err)
			continue
		}
		alerted++
	}

	if alerted > 0 {
		s.logger.Info("follow-up sweep: agents alerted", "count", alerted)
	}
	return alerted, nil
}

// Run executes ProcessSilent on a ticker until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessSilent(ctx); err != nil {
				s.logger.Error("follow-up sweep: pass failed", "error", err)
			}
		}
	}
}
