package alerts

import (
	"context"
	"time"
)

// AlertState tracks per-device alerting state. A device without a stored
// row is in the zero-value state.
type AlertState struct {
	DeviceID        string
	LastReadingAt   *time.Time
	LastAlertAt     *time.Time
	LastHvacAlertAt *time.Time
	AlertActive     bool
	StaleMissCount  int
}

// StatePatch is a partial update: nil fields keep their stored value.
// ClearLastAlert explicitly nulls last_alert_at, which a nil pointer
// cannot express (recovery needs it).
type StatePatch struct {
	LastReadingAt   *time.Time
	LastAlertAt     *time.Time
	ClearLastAlert  bool
	LastHvacAlertAt *time.Time
	AlertActive     *bool
	StaleMissCount  *int
}

// StateRepository persists per-device alert state.
type StateRepository interface {
	// Get returns the stored state for a device, or the zero-value state
	// when no row exists.
	Get(ctx context.Context, deviceID string) (AlertState, error)

	// Merge applies a partial update as a single atomic statement;
	// unspecified fields retain their stored value.
	Merge(ctx context.Context, deviceID string, patch StatePatch) error
}

// StaleAlert records one stale-data alert fired during a cycle.
type StaleAlert struct {
	DeviceID       string
	MinutesStalled int
}

// HvacAlert records one HVAC threshold alert fired during a cycle.
type HvacAlert struct {
	DeviceID    string
	Temperature float64
	Threshold   float64
}

// CycleResult summarizes one monitor cycle.
type CycleResult struct {
	StaleAlerts    []StaleAlert
	HvacAlerts     []HvacAlert
	CheckedDevices []string
}
