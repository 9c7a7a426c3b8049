package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InboundEvent is one delivery attempt from the messaging provider. Events
// are append-only and retained for audit; two deliveries with identical bytes
// collapse into a single row keyed by fingerprint.
type InboundEvent struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Fingerprint string
	RawPayload  []byte
	ReceivedAt  time.Time
}

// Fingerprint returns the hex sha256 of the exact raw request body. This is
// the idempotency key; it must be computed over the unparsed bytes so any
// implementation reproduces the same value.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists inbound webhook events exactly once per fingerprint.
type Store struct {
	pool rowQuerier
}

// NewStore creates an event store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithExec(exec rowQuerier) *Store {
	if exec == nil {
		panic("events: exec required")
	}
	return &Store{pool: exec}
}

// Insert records the event if its fingerprint is new for the tenant. The
// uniqueness check happens at the storage layer (ON CONFLICT), never as a
// check-then-insert in application code. Returns false when the event was
// already stored; that is an idempotent success, not an error.
func (s *Store) Insert(ctx context.Context, evt InboundEvent) (bool, error) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO inbound_events (id, tenant_id, fingerprint, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, fingerprint) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, evt.ID, evt.TenantID, evt.Fingerprint, evt.RawPayload, evt.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("events: insert event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
