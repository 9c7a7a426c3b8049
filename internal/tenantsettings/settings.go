// Package tenantsettings stores per-tenant inbox configuration in Redis.
package tenantsettings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bounds for the follow-up window. Anything outside is clamped on write.
const (
	DefaultFollowUpMinutes = 120
	MinFollowUpMinutes     = 5
	MaxFollowUpMinutes     = 7 * 24 * 60
)

// Settings holds the tenant-adjustable knobs for the inbox.
type Settings struct {
	TenantID uuid.UUID `json:"tenant_id"`
	// FollowUpMinutes is the silence window after a customer message before
	// the follow-up evaluator escalates.
	FollowUpMinutes int        `json:"follow_up_minutes"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// DefaultSettings returns the settings a tenant starts with.
func DefaultSettings(tenantID uuid.UUID) *Settings {
	return &Settings{
		TenantID:        tenantID,
		FollowUpMinutes: DefaultFollowUpMinutes,
	}
}

// Store provides persistence for tenant settings.
type Store struct {
	redis *redis.Client
}

// NewStore creates a tenant settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:settings:%s", tenantID)
}

// Get retrieves a tenant's settings, returning defaults if none are stored.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenantsettings: get: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("tenantsettings: unmarshal: %w", err)
	}
	settings.TenantID = tenantID
	return &settings, nil
}

// Set saves a tenant's settings, clamping the follow-up window into bounds.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if settings.TenantID == uuid.Nil {
		return fmt.Errorf("tenantsettings: tenant id required")
	}
	if settings.FollowUpMinutes < MinFollowUpMinutes {
		settings.FollowUpMinutes = MinFollowUpMinutes
	}
	if settings.FollowUpMinutes > MaxFollowUpMinutes {
		settings.FollowUpMinutes = MaxFollowUpMinutes
	}
	now := time.Now().UTC()
	settings.UpdatedAt = &now

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("tenantsettings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(settings.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("tenantsettings: set: %w", err)
	}
	return nil
}

// FollowUpMinutes resolves the tenant's follow-up window. Satisfies the
// followup.ThresholdSource interface.
func (s *Store) FollowUpMinutes(ctx context.Context, tenantID uuid.UUID) (int, error) {
	settings, err := s.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if settings.FollowUpMinutes <= 0 {
		return DefaultFollowUpMinutes, nil
	}
	return settings.FollowUpMinutes, nil
}
