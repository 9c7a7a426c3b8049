package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MembershipRepository reads tenant memberships from Postgres.
type MembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a membership repository.
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Roles returns the roles the user holds in the tenant. A user with no
// membership row resolves to ErrNotFound.
func (r *MembershipRepository) Roles(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	var roles []string
	err := r.db.QueryRowContext(ctx, `
		SELECT roles FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID).
		Scan(pq.Array(&roles))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tenancy: query membership: %w", err)
	}
	return roles, nil
}
