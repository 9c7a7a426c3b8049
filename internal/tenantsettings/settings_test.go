package tenantsettings

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	store := newTestStore(t)
	tenantID := uuid.New()

	settings, err := store.Get(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, settings.TenantID)
	assert.Equal(t, DefaultFollowUpMinutes, settings.FollowUpMinutes)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tenantID := uuid.New()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Settings{TenantID: tenantID, FollowUpMinutes: 45}))

	settings, err := store.Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 45, settings.FollowUpMinutes)
	assert.NotNil(t, settings.UpdatedAt, "updated_at must be stamped on write")
}

func TestSetClampsWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		minutes int
		want    int
	}{
		{"below minimum", 1, MinFollowUpMinutes},
		{"above maximum", MaxFollowUpMinutes + 1, MaxFollowUpMinutes},
		{"in bounds", 30, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID := uuid.New()
			require.NoError(t, store.Set(ctx, &Settings{TenantID: tenantID, FollowUpMinutes: tt.minutes}))
			settings, err := store.Get(ctx, tenantID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, settings.FollowUpMinutes)
		})
	}
}

func TestSetRequiresTenant(t *testing.T) {
	store := newTestStore(t)
	err := store.Set(context.Background(), &Settings{FollowUpMinutes: 30})
	assert.Error(t, err, "settings without a tenant id must be rejected")
}

func TestFollowUpMinutes(t *testing.T) {
	store := newTestStore(t)
	tenantID := uuid.New()
	ctx := context.Background()

	mins, err := store.FollowUpMinutes(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, DefaultFollowUpMinutes, mins)

	require.NoError(t, store.Set(ctx, &Settings{TenantID: tenantID, FollowUpMinutes: 60}))
	mins, err = store.FollowUpMinutes(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 60, mins)
}
