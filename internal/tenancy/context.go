package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type tenantKey struct{}

// WithTenant stamps the tenant an operation runs on behalf of into ctx.
// Agent auth sets it from the token; webhook ingestion sets it from the
// tenant endpoint. It carries the tenant alongside the call chain for
// handlers and logging; store queries still take the tenant id as an
// explicit parameter.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext extracts the tenant id if one was stamped.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(tenantKey{}).(uuid.UUID)
	return tenantID, ok && tenantID != uuid.Nil
}
