package testutil

import (
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// NewTenant builds a streamer tenant with the features the pipeline tests
// exercise: chat commands on, milestone thresholds at 10/25/50 deaths.
func NewTenant(tenantID string) models.Tenant {
	now := time.Now().UTC()
	return models.Tenant{
		TenantID:     tenantID,
		Username:     "streamer_" + tenantID,
		DisplayName:  "Streamer " + tenantID,
		Role:         models.RoleStreamer,
		StreamStatus: models.StatusOffline,
		Features: models.FeatureSet{
			ChatCommands:  true,
			ChannelPoints: true,
			StreamOverlay: true,
		},
		Notifications: models.NotificationSettings{
			StreamOnline: true,
			Milestones:   true,
			Raids:        true,
		},
		CounterThresholds: models.ThresholdConfig{
			Deaths: []int64{10, 25, 50},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewCredentials builds a non-expired credential tuple for a tenant.
func NewCredentials(tenantID string) models.Credentials {
	return models.Credentials{
		TenantID:     tenantID,
		AccessToken:  "access-" + tenantID,
		RefreshToken: "refresh-" + tenantID,
		ExpiresAt:    time.Now().Add(4 * time.Hour),
		UpdatedAt:    time.Now().UTC(),
	}
}
