package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/inbox-platform/internal/tenancy"
)

const snapshotColumns = `
	c.id, c.tenant_id, c.contact_id, c.assigned_user_id, c.current_stage_id,
	ct.status, c.queue_status, c.last_patient_message_at,
	c.last_outbound_message_at, c.last_stage_moved_at`

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads conversation snapshots. Every query is tenant-scoped: the
// tenant id is an explicit parameter, never inferred from the row found.
type Store struct {
	pool rowQuerier
}

// NewStore creates a conversation snapshot store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithExec(exec rowQuerier) *Store {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &Store{pool: exec}
}

// Get returns the conversation snapshot, scoped to the tenant. A row in a
// different tenant resolves to tenancy.ErrNotFound.
func (s *Store) Get(ctx context.Context, tenantID, conversationID uuid.UUID) (*Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.tenant_id = $1 AND c.id = $2`
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, tenantID, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenancy.ErrNotFound
		}
		return nil, fmt.Errorf("conversation: get snapshot: %w", err)
	}
	return snap, nil
}

// FindOpenByContactPhone locates the tenant's open conversation for a
// contact phone, newest first. Returns tenancy.ErrNotFound when the contact
// has no open conversation yet.
func (s *Store) FindOpenByContactPhone(ctx context.Context, tenantID uuid.UUID, phoneE164 string) (*Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.tenant_id = $1 AND ct.phone_e164 = $2 AND c.queue_status <> 'finished'
		ORDER BY c.created_at DESC
		LIMIT 1`
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, tenantID, phoneE164))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenancy.ErrNotFound
		}
		return nil, fmt.Errorf("conversation: find by contact phone: %w", err)
	}
	return snap, nil
}

// ListSilentSince returns open conversations whose customer has been waiting
// since before the cutoff: the last inbound message is older than the cutoff
// and no agent reply has landed after it. Spans all tenants; the follow-up
// sweep applies each tenant's own window afterwards.
func (s *Store) ListSilentSince(ctx context.Context, cutoff time.Time, limit int) ([]Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.queue_status <> 'finished'
		  AND c.last_patient_message_at IS NOT NULL
		  AND c.last_patient_message_at <= $1
		  AND (c.last_outbound_message_at IS NULL
		       OR c.last_outbound_message_at < c.last_patient_message_at)
		ORDER BY c.last_patient_message_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list silent: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan silent row: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list silent: %w", err)
	}
	return snaps, nil
}

// ConversationTenant resolves the owning tenant of a conversation. Used by
// the tenant authorization guard; a missing row is tenancy.ErrNotFound.
func (s *Store) ConversationTenant(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id FROM conversations WHERE id = $1`, conversationID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, tenancy.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("conversation: resolve tenant: %w", err)
	}
	return tenantID, nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(
		&snap.ID, &snap.TenantID, &snap.ContactID, &snap.AssignedUserID,
		&snap.CurrentStageID, &snap.ContactStatus, &snap.QueueStatus,
		&snap.LastPatientMessageAt, &snap.LastOutboundMessageAt, &snap.LastStageMovedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
