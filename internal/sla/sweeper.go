package sla

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	observemetrics "github.com/clinicdesk/inbox-platform/internal/observability/metrics"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// Breach describes one detected SLA breach for escalation.
type Breach struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	AssignedUserID *uuid.UUID
	DueAt          time.Time
	BreachedAt     time.Time
}

// BreachNotifier escalates detected breaches to the responsible agent.
type BreachNotifier interface {
	NotifyBreach(ctx context.Context, b Breach) error
}

// SweepStore is the subset of the store the sweeper needs.
type SweepStore interface {
	ListDueRunning(ctx context.Context, now time.Time, limit int) ([]Timer, error)
}

// Sweeper periodically scans Running timers past due and breaches them. It
// is a safety net behind the eager per-read breach check, never the only
// detector.
type Sweeper struct {
	engine   *Engine
	store    SweepStore
	notifier BreachNotifier
	metrics  *observemetrics.SLAMetrics
	logger   *logging.Logger
	batch    int
	now      func() time.Time
}

// SweeperConfig wires a Sweeper.
type SweeperConfig struct {
	Engine    *Engine
	Store     SweepStore
	Notifier  BreachNotifier
	Metrics   *observemetrics.SLAMetrics
	Logger    *logging.Logger
	BatchSize int
	Now       func() time.Time
}

// NewSweeper creates a breach sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Engine == nil {
		panic("sla: engine required")
	}
	if cfg.Store == nil {
		panic("sla: sweep store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		engine:   cfg.Engine,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		batch:    cfg.BatchSize,
		now:      cfg.Now,
	}
}

// ProcessDue breaches every Running timer past its due time. Returns the
// number of timers breached by this pass.
func (s *Sweeper) ProcessDue(ctx context.Context) (int, error) {
	start := s.now()
	due, err := s.store.ListDueRunning(ctx, start.UTC(), s.batch)
	if err != nil {
		return 0, err
	}

	breached := 0
	for i := range due {
		t := due[i]
		if err := s.breachOne(ctx, &t); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				// Another writer transitioned the timer first; nothing lost.
				continue
			}
			s.logger.Error("sla sweep: breach failed",
				"conversation_id", t.ConversationID, "error", err)
			continue
		}
		breached++
	}

	s.metrics.ObserveSweepLatency(time.Since(start).Seconds())
	if breached > 0 {
		s.logger.Info("sla sweep: timers breached", "count", breached)
	}
	return breached, nil
}

// Run executes ProcessDue on a ticker until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx); err != nil {
				s.logger.Error("sla sweep: pass failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) breachOne(ctx context.Context, t *Timer) error {
	unlock := s.engine.locks.Lock(t.ConversationID)
	defer unlock()

	now := s.now().UTC()
	if !t.CheckBreach(now) {
		return nil
	}
	if err := s.engine.persistBreach(ctx, t, now); err != nil {
		return err
	}

	if s.notifier != nil {
		breach := Breach{
			TenantID:       t.TenantID,
			ConversationID: t.ConversationID,
			DueAt:          t.DueAt,
			BreachedAt:     *t.BreachedAt,
		}
		if snap, err := s.engine.conversations.Get(ctx, t.TenantID, t.ConversationID); err == nil {
			breach.AssignedUserID = snap.AssignedUserID
		}
		if err := s.notifier.NotifyBreach(ctx, breach); err != nil {
			s.logger.Error("sla sweep: breach notification failed",
				"conversation_id", t.ConversationID, "error", err)
		}
	}
	return nil
}
