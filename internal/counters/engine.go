// Package counters is the sole mutator of per-tenant counter state and series
// snapshots. All operations on one tenant are serialized; cross-tenant
// operations proceed in parallel. The per-tenant lock is never held across a
// store call: mutations are computed against the in-memory authoritative copy
// and persisted with a single upsert after the lock is released.
package counters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// ThresholdSource resolves the milestone threshold configuration for a
// tenant. Lookup failures are treated as "no thresholds".
type ThresholdSource interface {
	Thresholds(ctx context.Context, tenantID string) models.ThresholdConfig
}

// ThresholdSourceFunc adapts a function to a ThresholdSource.
type ThresholdSourceFunc func(ctx context.Context, tenantID string) models.ThresholdConfig

func (f ThresholdSourceFunc) Thresholds(ctx context.Context, tenantID string) models.ThresholdConfig {
	return f(ctx, tenantID)
}

// Engine owns counter state. Construct with NewEngine.
type Engine struct {
	repo       *store.Repository
	thresholds ThresholdSource
	logger     logging.Logger

	mu      sync.Mutex
	tenants map[string]*tenantState
}

type tenantState struct {
	mu       sync.Mutex // guards counters and seq
	counters models.Counters
	loaded   bool
	seq      uint64

	persistMu    sync.Mutex // serializes store writes in mutation order
	persistedSeq uint64
}

// NewEngine creates a counter engine backed by the repository.
func NewEngine(repo *store.Repository, thresholds ThresholdSource, logger logging.Logger) *Engine {
	if thresholds == nil {
		thresholds = ThresholdSourceFunc(func(context.Context, string) models.ThresholdConfig {
			return models.ThresholdConfig{}
		})
	}
	return &Engine{
		repo:       repo,
		thresholds: thresholds,
		logger:     logger,
		tenants:    make(map[string]*tenantState),
	}
}

func (e *Engine) state(tenantID string) *tenantState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tenants[tenantID]
	if !ok {
		st = &tenantState{}
		e.tenants[tenantID] = st
	}
	return st
}

// ensureLoaded populates the in-memory copy from the store on first touch.
// The load happens outside the tenant lock; concurrent first touches are
// idempotent.
func (e *Engine) ensureLoaded(ctx context.Context, st *tenantState, tenantID string) error {
	st.mu.Lock()
	loaded := st.loaded
	st.mu.Unlock()
	if loaded {
		return nil
	}

	c, err := e.repo.GetCounters(ctx, tenantID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if !st.loaded {
		st.counters = c
		st.loaded = true
	}
	st.mu.Unlock()
	return nil
}

// mutate applies fn under the tenant lock and persists the result. fn returns
// the change delta it caused.
func (e *Engine) mutate(ctx context.Context, tenantID string, fn func(c *models.Counters) models.CounterChange) (models.Counters, models.CounterChange, error) {
	st := e.state(tenantID)
	if err := e.ensureLoaded(ctx, st, tenantID); err != nil {
		return models.Counters{}, models.CounterChange{}, err
	}

	st.mu.Lock()
	prev := st.counters
	change := fn(&st.counters)
	st.counters.TenantID = tenantID
	st.counters.LastUpdated = time.Now().UTC()
	st.seq++
	seq := st.seq
	snapshot := st.counters
	st.mu.Unlock()

	if err := e.persist(ctx, st, seq, snapshot); err != nil {
		// Roll the in-memory copy back so a failed write is not half
		// applied. A newer mutation that landed meanwhile supersedes this
		// one and keeps its own state.
		st.mu.Lock()
		if st.seq == seq {
			st.counters = prev
			st.seq = seq - 1
		}
		st.mu.Unlock()
		return models.Counters{}, models.CounterChange{}, err
	}
	return snapshot, change, nil
}

// persist writes a mutation snapshot. A writer that lost the race to a newer
// snapshot skips its write; the newer state is already on disk or queued.
func (e *Engine) persist(ctx context.Context, st *tenantState, seq uint64, snapshot models.Counters) error {
	st.persistMu.Lock()
	defer st.persistMu.Unlock()
	if seq <= st.persistedSeq {
		return nil
	}
	if err := e.repo.PutCounters(ctx, snapshot); err != nil {
		return fmt.Errorf("persist counters for %s: %w", snapshot.TenantID, err)
	}
	st.persistedSeq = seq
	return nil
}

// Get returns a consistent snapshot of the tenant's counters.
func (e *Engine) Get(ctx context.Context, tenantID string) (models.Counters, error) {
	st := e.state(tenantID)
	if err := e.ensureLoaded(ctx, st, tenantID); err != nil {
		return models.Counters{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.counters, nil
}

// Increment adds one to a counter and reports any milestone crossings, in
// ascending threshold order.
func (e *Engine) Increment(ctx context.Context, tenantID string, kind models.CounterKind) (models.Counters, models.CounterChange, []models.Milestone, error) {
	thresholds := e.thresholds.Thresholds(ctx, tenantID).ForKind(kind)

	var milestones []models.Milestone
	c, change, err := e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		prev := c.Value(kind)
		next := prev + 1
		setValue(c, kind, next)
		milestones = crossings(kind, thresholds, prev, next)
		return delta(kind, 1)
	})
	if err != nil {
		return models.Counters{}, models.CounterChange{}, nil, err
	}
	return c, change, milestones, nil
}

// Decrement subtracts one, flooring at zero. A decrement at zero returns the
// unchanged record with a zero change; it is not an error.
func (e *Engine) Decrement(ctx context.Context, tenantID string, kind models.CounterKind) (models.Counters, models.CounterChange, error) {
	return e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		prev := c.Value(kind)
		if prev == 0 {
			return models.CounterChange{}
		}
		setValue(c, kind, prev-1)
		return delta(kind, -1)
	})
}

// AddBits adds a non-negative amount to the bits counter.
func (e *Engine) AddBits(ctx context.Context, tenantID string, amount int64) (models.Counters, models.CounterChange, error) {
	if amount < 0 {
		return models.Counters{}, models.CounterChange{}, fmt.Errorf("%w: negative bits amount %d", models.ErrInvalidInput, amount)
	}
	return e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		c.Bits += amount
		return models.CounterChange{Bits: amount}
	})
}

// Reset zeros deaths, swears and screams. Bits, streamStarted and
// lastNotifiedStreamId are preserved.
func (e *Engine) Reset(ctx context.Context, tenantID string) (models.Counters, models.CounterChange, error) {
	return e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		change := models.CounterChange{Deaths: -c.Deaths, Swears: -c.Swears, Screams: -c.Screams}
		c.Deaths, c.Swears, c.Screams = 0, 0, 0
		return change
	})
}

// StartStream zeros bits and stamps streamStarted. LastNotifiedStreamID is
// preserved; duplicate suppression spans reconnects within one stream.
func (e *Engine) StartStream(ctx context.Context, tenantID string) (models.Counters, error) {
	c, _, err := e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		change := models.CounterChange{Bits: -c.Bits}
		c.Bits = 0
		now := time.Now().UTC()
		c.StreamStarted = &now
		return change
	})
	return c, err
}

// EndStream clears streamStarted and lastNotifiedStreamId.
func (e *Engine) EndStream(ctx context.Context, tenantID string) (models.Counters, error) {
	c, _, err := e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		c.StreamStarted = nil
		c.LastNotifiedStreamID = nil
		return models.CounterChange{}
	})
	return c, err
}

// SetLastNotifiedStreamID records the stream id a start notification was sent
// for. Pass nil to clear.
func (e *Engine) SetLastNotifiedStreamID(ctx context.Context, tenantID string, streamID *string) error {
	_, _, err := e.mutate(ctx, tenantID, func(c *models.Counters) models.CounterChange {
		c.LastNotifiedStreamID = streamID
		return models.CounterChange{}
	})
	return err
}

// LastNotifiedStreamID returns the stream id of the last dispatched start
// notification, or nil.
func (e *Engine) LastNotifiedStreamID(ctx context.Context, tenantID string) (*string, error) {
	c, err := e.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return c.LastNotifiedStreamID, nil
}

func setValue(c *models.Counters, kind models.CounterKind, v int64) {
	switch kind {
	case models.KindDeaths:
		c.Deaths = v
	case models.KindSwears:
		c.Swears = v
	case models.KindScreams:
		c.Screams = v
	case models.KindBits:
		c.Bits = v
	}
}

func delta(kind models.CounterKind, d int64) models.CounterChange {
	switch kind {
	case models.KindDeaths:
		return models.CounterChange{Deaths: d}
	case models.KindSwears:
		return models.CounterChange{Swears: d}
	case models.KindScreams:
		return models.CounterChange{Screams: d}
	case models.KindBits:
		return models.CounterChange{Bits: d}
	}
	return models.CounterChange{}
}

// crossings returns one milestone per threshold t with prev < t <= next, in
// ascending order. previousMilestone is the largest configured threshold
// below t, or 0.
func crossings(kind models.CounterKind, thresholds []int64, prev, next int64) []models.Milestone {
	sorted := make([]int64, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []models.Milestone
	var previous int64
	for _, t := range sorted {
		if prev < t && t <= next {
			out = append(out, models.Milestone{Kind: kind, Threshold: t, PreviousMilestone: previous})
		}
		previous = t
	}
	return out
}
