package dispatch

import (
	"context"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// The mutation facade is the one path through which counter changes reach
// subscribers: HTTP handlers, room commands and chat commands all call these
// so milestones and counterUpdate records are emitted consistently, milestone
// first.

// Increment bumps a counter, announces crossings, then the counterUpdate.
func (d *Dispatcher) Increment(ctx context.Context, tenantID string, kind models.CounterKind, source string) (models.Counters, error) {
	c, change, milestones, err := d.engine.Increment(ctx, tenantID, kind)
	if err != nil {
		return models.Counters{}, err
	}
	if tenant, terr := d.tenant(ctx, tenantID); terr == nil {
		d.emitMilestones(ctx, tenant, kind, c, milestones)
	}
	d.emitCounterUpdate(ctx, tenantID, c, change, source)
	return c, nil
}

// Decrement lowers a counter, flooring at zero.
func (d *Dispatcher) Decrement(ctx context.Context, tenantID string, kind models.CounterKind, source string) (models.Counters, error) {
	c, change, err := d.engine.Decrement(ctx, tenantID, kind)
	if err != nil {
		return models.Counters{}, err
	}
	d.emitCounterUpdate(ctx, tenantID, c, change, source)
	return c, nil
}

// Reset zeros deaths/swears/screams and reopens milestone announcements.
func (d *Dispatcher) Reset(ctx context.Context, tenantID, source string) (models.Counters, error) {
	c, change, err := d.engine.Reset(ctx, tenantID)
	if err != nil {
		return models.Counters{}, err
	}
	d.clearNotified(tenantID)
	d.emitCounterUpdate(ctx, tenantID, c, change, source)
	return c, nil
}

// StartStream is called by the lifecycle controller on go-live.
func (d *Dispatcher) StartStream(ctx context.Context, tenantID string) (models.Counters, error) {
	c, err := d.engine.StartStream(ctx, tenantID)
	if err != nil {
		return models.Counters{}, err
	}
	d.clearNotified(tenantID)
	d.emitCounterUpdate(ctx, tenantID, c, models.CounterChange{}, "stream-start")
	return c, nil
}

// EndStream is called by the lifecycle controller when the tenant ends the
// stream.
func (d *Dispatcher) EndStream(ctx context.Context, tenantID string) (models.Counters, error) {
	c, err := d.engine.EndStream(ctx, tenantID)
	if err != nil {
		return models.Counters{}, err
	}
	return c, nil
}

// SaveSeries snapshots the current counters under a name.
func (d *Dispatcher) SaveSeries(ctx context.Context, tenantID, name, description string) (models.SeriesSnapshot, error) {
	return d.engine.SaveSeries(ctx, tenantID, name, description)
}

// LoadSeries restores a snapshot and pushes the restored state with a zero
// change so overlays repaint.
func (d *Dispatcher) LoadSeries(ctx context.Context, tenantID, seriesID string) (models.Counters, error) {
	c, change, err := d.engine.LoadSeries(ctx, tenantID, seriesID)
	if err != nil {
		return models.Counters{}, err
	}
	d.emitCounterUpdate(ctx, tenantID, c, change, "series-load")
	return c, nil
}

// Counters returns the current snapshot without mutating.
func (d *Dispatcher) Counters(ctx context.Context, tenantID string) (models.Counters, error) {
	return d.engine.Get(ctx, tenantID)
}

// Broadcast exposes the sink path for components that produce room messages
// of their own (lifecycle transitions, settings updates).
func (d *Dispatcher) Broadcast(ctx context.Context, tenantID string, msg models.RoomMessage) {
	d.broadcast(ctx, tenantID, msg)
}
