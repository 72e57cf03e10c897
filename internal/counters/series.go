package counters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// SaveSeries captures the current {deaths, swears, bits} under a name and
// stores it as a new snapshot. The live counters are not modified.
func (e *Engine) SaveSeries(ctx context.Context, tenantID, name, description string) (models.SeriesSnapshot, error) {
	if strings.TrimSpace(name) == "" {
		return models.SeriesSnapshot{}, fmt.Errorf("%w: series name is required", models.ErrInvalidInput)
	}

	c, err := e.Get(ctx, tenantID)
	if err != nil {
		return models.SeriesSnapshot{}, err
	}

	now := time.Now().UTC()
	snap := models.SeriesSnapshot{
		SeriesID:    models.NewSeriesID(name, now),
		SeriesName:  name,
		Description: description,
		Deaths:      c.Deaths,
		Swears:      c.Swears,
		Bits:        c.Bits,
		SavedAt:     now,
	}
	if err := e.repo.PutSeries(ctx, tenantID, snap); err != nil {
		return models.SeriesSnapshot{}, err
	}
	e.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"series_id": snap.SeriesID,
	}).Info("Series snapshot saved")
	return snap, nil
}

// LoadSeries replaces the live {deaths, swears, bits} with a stored snapshot.
// The reported change is zero: a load is a restore, not a mutation stream.
func (e *Engine) LoadSeries(ctx context.Context, tenantID, seriesID string) (models.Counters, models.CounterChange, error) {
	snap, err := e.repo.GetSeries(ctx, tenantID, seriesID)
	if err != nil {
		return models.Counters{}, models.CounterChange{}, err
	}

	c, _, err := e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		c.Deaths = snap.Deaths
		c.Swears = snap.Swears
		c.Bits = snap.Bits
		return models.CounterChange{}
	})
	if err != nil {
		return models.Counters{}, models.CounterChange{}, err
	}
	return c, models.CounterChange{}, nil
}

// ListSeries returns the tenant's snapshots, newest first.
func (e *Engine) ListSeries(ctx context.Context, tenantID string) ([]models.SeriesSnapshot, error) {
	return e.repo.ListSeries(ctx, tenantID)
}

// DeleteSeries removes a snapshot. Deleting a missing snapshot returns
// ErrNotFound.
func (e *Engine) DeleteSeries(ctx context.Context, tenantID, seriesID string) error {
	return e.repo.DeleteSeries(ctx, tenantID, seriesID)
}
