package models

import (
	"fmt"
	"strings"
	"time"
)

// CounterKind names one of the tracked per-tenant counters.
type CounterKind string

// Counter kinds
const (
	KindDeaths  CounterKind = "deaths"
	KindSwears  CounterKind = "swears"
	KindScreams CounterKind = "screams"
	KindBits    CounterKind = "bits"
)

// ParseCounterKind validates a counter kind received from the outside.
func ParseCounterKind(s string) (CounterKind, error) {
	switch CounterKind(s) {
	case KindDeaths, KindSwears, KindScreams, KindBits:
		return CounterKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown counter kind %q", ErrInvalidInput, s)
}

// Counters is the per-tenant numeric state. All four counters are always
// non-negative; decrement at zero is a no-op.
type Counters struct {
	TenantID             string     `json:"tenantId"`
	Deaths               int64      `json:"deaths"`
	Swears               int64      `json:"swears"`
	Screams              int64      `json:"screams"`
	Bits                 int64      `json:"bits"`
	StreamStarted        *time.Time `json:"streamStarted"`
	LastNotifiedStreamID *string    `json:"lastNotifiedStreamId"`
	LastUpdated          time.Time  `json:"lastUpdated"`
}

// Value returns the current value for a kind.
func (c *Counters) Value(kind CounterKind) int64 {
	switch kind {
	case KindDeaths:
		return c.Deaths
	case KindSwears:
		return c.Swears
	case KindScreams:
		return c.Screams
	case KindBits:
		return c.Bits
	}
	return 0
}

// CounterChange is the signed delta attached to every post-mutation record.
type CounterChange struct {
	Deaths  int64 `json:"deaths"`
	Swears  int64 `json:"swears"`
	Screams int64 `json:"screams"`
	Bits    int64 `json:"bits"`
}

// IsZero reports whether the mutation changed nothing.
func (c CounterChange) IsZero() bool {
	return c.Deaths == 0 && c.Swears == 0 && c.Screams == 0 && c.Bits == 0
}

// Milestone is a one-shot threshold crossing produced by a counter mutation.
type Milestone struct {
	Kind              CounterKind `json:"kind"`
	Threshold         int64       `json:"threshold"`
	PreviousMilestone int64       `json:"previousMilestone"`
}

// SeriesSnapshot is a named capture of {deaths, swears, bits} restorable onto
// the current counters. StreamStarted is never part of a snapshot.
type SeriesSnapshot struct {
	SeriesID    string    `json:"seriesId"`
	SeriesName  string    `json:"seriesName"`
	Description string    `json:"description,omitempty"`
	Deaths      int64     `json:"deaths"`
	Swears      int64     `json:"swears"`
	Bits        int64     `json:"bits"`
	SavedAt     time.Time `json:"savedAt"`
}

// SanitizeSeriesName replaces every rune outside [A-Za-z0-9] with an
// underscore.
func SanitizeSeriesName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NewSeriesID builds the canonical series identifier <millis>_<sanitized name>.
func NewSeriesID(name string, now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), SanitizeSeriesName(name))
}
