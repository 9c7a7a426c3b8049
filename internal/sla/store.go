package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when a conditional timer update lost the
// race against another writer. The caller re-reads and retries, or relies on
// queue redelivery.
var ErrVersionConflict = errors.New("sla: timer version conflict")

// EventType tags the audit trail rows the engine appends.
type EventType string

const (
	EventResponse EventType = "response"
	EventBreach   EventType = "breach"
)

// Event is an append-only audit record of a timer outcome.
type Event struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ConversationID  uuid.UUID
	AssignedUserID  *uuid.UUID
	Type            EventType
	StartedAt       time.Time
	DueAt           time.Time
	OccurredAt      time.Time
	ResponseSeconds *int
	PolicyID        uuid.UUID
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists SLA timers, policies and audit events in Postgres.
type Store struct {
	pool rowQuerier
}

// NewStore creates an SLA store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("sla: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithExec(exec rowQuerier) *Store {
	if exec == nil {
		panic("sla: exec required")
	}
	return &Store{pool: exec}
}

const timerColumns = `
	id, conversation_id, tenant_id, policy_id, started_at, due_at,
	paused_at, breached_at, completed_at, budget_seconds, warning_percent, version`

// ActiveTimer returns the conversation's active (neither breached nor
// completed) timer, or nil when none exists.
func (s *Store) ActiveTimer(ctx context.Context, tenantID, conversationID uuid.UUID) (*Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM sla_timers
		WHERE tenant_id = $1 AND conversation_id = $2
		  AND breached_at IS NULL AND completed_at IS NULL`
	t, err := scanTimer(s.pool.QueryRow(ctx, query, tenantID, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sla: load active timer: %w", err)
	}
	return t, nil
}

// InsertTimer stores a freshly started timer.
func (s *Store) InsertTimer(ctx context.Context, t *Timer) error {
	query := `
		INSERT INTO sla_timers (` + timerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ConversationID, t.TenantID, t.PolicyID, t.StartedAt, t.DueAt,
		t.PausedAt, t.BreachedAt, t.CompletedAt, t.BudgetSeconds, t.WarningPercent, t.Version)
	if err != nil {
		return fmt.Errorf("sla: insert timer: %w", err)
	}
	return nil
}

// UpdateTimer writes the timer back conditionally on the version the caller
// read, so two concurrent writers cannot both apply stale due_at arithmetic.
// On success the in-memory version is bumped to match the row.
func (s *Store) UpdateTimer(ctx context.Context, t *Timer) error {
	query := `
		UPDATE sla_timers
		SET due_at = $1, paused_at = $2, breached_at = $3, completed_at = $4,
		    version = version + 1
		WHERE id = $5 AND version = $6`
	ct, err := s.pool.Exec(ctx, query,
		t.DueAt, t.PausedAt, t.BreachedAt, t.CompletedAt, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("sla: update timer: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	t.Version++
	return nil
}

// ListDueRunning returns Running timers whose due time has passed, for the
// periodic breach sweep.
func (s *Store) ListDueRunning(ctx context.Context, now time.Time, limit int) ([]Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM sla_timers
		WHERE due_at <= $1 AND paused_at IS NULL
		  AND breached_at IS NULL AND completed_at IS NULL
		ORDER BY due_at
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sla: list due timers: %w", err)
	}
	defer rows.Close()

	var out []Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("sla: scan due timer: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// InsertEvent appends an audit event.
func (s *Store) InsertEvent(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	query := `
		INSERT INTO sla_events (id, tenant_id, conversation_id, assigned_user_id,
			type, started_at, due_at, occurred_at, response_seconds, policy_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.TenantID, ev.ConversationID, ev.AssignedUserID,
		ev.Type, ev.StartedAt, ev.DueAt, ev.OccurredAt, ev.ResponseSeconds, ev.PolicyID)
	if err != nil {
		return fmt.Errorf("sla: insert event: %w", err)
	}
	return nil
}

// ListPolicies returns all policy rows configured for the tenant.
func (s *Store) ListPolicies(ctx context.Context, tenantID uuid.UUID) ([]Policy, error) {
	query := `
		SELECT id, tenant_id, stage_id, contact_status, response_seconds, warning_threshold_percent
		FROM sla_policies
		WHERE tenant_id = $1`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sla: list policies: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.TenantID, &p.StageID, &p.ContactStatus,
			&p.ResponseSeconds, &p.WarningThresholdPercent); err != nil {
			return nil, fmt.Errorf("sla: scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanTimer(row pgx.Row) (*Timer, error) {
	var t Timer
	err := row.Scan(
		&t.ID, &t.ConversationID, &t.TenantID, &t.PolicyID, &t.StartedAt, &t.DueAt,
		&t.PausedAt, &t.BreachedAt, &t.CompletedAt, &t.BudgetSeconds, &t.WarningPercent, &t.Version,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
