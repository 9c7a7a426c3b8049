package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestTenantContextRoundTrip(t *testing.T) {
	tenantID := uuid.New()
	ctx := WithTenant(context.Background(), tenantID)
	got, ok := TenantFromContext(ctx)
	if !ok || got != tenantID {
		t.Fatalf("expected %s, got %s ok=%v", tenantID, got, ok)
	}
}

func TestTenantContextMissing(t *testing.T) {
	if _, ok := TenantFromContext(context.Background()); ok {
		t.Fatal("expected no tenant in empty context")
	}
	if _, ok := TenantFromContext(WithTenant(context.Background(), uuid.Nil)); ok {
		t.Fatal("expected nil tenant id to report absent")
	}
}
