package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "telemetry-hub/internal/alerts/domain"
)

// StateRepository is a Postgres implementation for per-device alert state.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository constructs a repository.
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get fetches alert state; a missing row yields the zero-value state.
func (r *StateRepository) Get(ctx context.Context, deviceID string) (alerts.AlertState, error) {
	state := alerts.AlertState{DeviceID: deviceID}
	if r == nil || r.db == nil {
		return state, errors.New("alert state repo: nil db")
	}
	if deviceID == "" {
		return state, errors.New("alert state repo: empty device id")
	}

	var lastReading, lastAlert, lastHvac sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT last_reading_at, last_alert_at, last_hvac_alert_at, alert_active,
       COALESCE(stale_miss_count, 0)
FROM alert_state
WHERE device_id = $1`, deviceID).Scan(
		&lastReading,
		&lastAlert,
		&lastHvac,
		&state.AlertActive,
		&state.StaleMissCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	state.LastReadingAt = timePtr(lastReading)
	state.LastAlertAt = timePtr(lastAlert)
	state.LastHvacAlertAt = timePtr(lastHvac)
	return state, nil
}

// Merge applies a partial update in one atomic upsert. Nil patch fields
// keep the stored value via COALESCE; ClearLastAlert forces last_alert_at
// to NULL. No read-modify-write round trip happens here.
func (r *StateRepository) Merge(ctx context.Context, deviceID string, patch alerts.StatePatch) error {
	if r == nil || r.db == nil {
		return errors.New("alert state repo: nil db")
	}
	if deviceID == "" {
		return errors.New("alert state repo: empty device id")
	}

	lastAlert := nullTime(patch.LastAlertAt)
	if patch.ClearLastAlert {
		lastAlert = sql.NullTime{}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO alert_state (
	device_id, last_reading_at, last_alert_at, last_hvac_alert_at,
	alert_active, stale_miss_count
) VALUES (
	$1, $2, $3, $4,
	COALESCE($5, FALSE), COALESCE($6, 0)
)
ON CONFLICT (device_id) DO UPDATE SET
	last_reading_at = COALESCE($2, alert_state.last_reading_at),
	last_alert_at = CASE WHEN $7 THEN NULL ELSE COALESCE($3, alert_state.last_alert_at) END,
	last_hvac_alert_at = COALESCE($4, alert_state.last_hvac_alert_at),
	alert_active = COALESCE($5, alert_state.alert_active),
	stale_miss_count = COALESCE($6, alert_state.stale_miss_count)`,
		deviceID,
		nullTime(patch.LastReadingAt),
		lastAlert,
		nullTime(patch.LastHvacAlertAt),
		nullBool(patch.AlertActive),
		nullInt(patch.StaleMissCount),
		patch.ClearLastAlert,
	)
	return err
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
