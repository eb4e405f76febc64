package reports

import (
	"context"
	"time"
)

// HourlyReport is one persisted per-device rollup for a one-hour window.
// The (device_id, hour_start) pair is the identity; re-computing a window
// overwrites the previous row.
type HourlyReport struct {
	DeviceID       string
	HourStart      time.Time
	ReadingCount   int64
	AvgTemperature *float64
	MaxTemperature *float64
	MinTemperature *float64
	AvgHumidity    *float64
	AvgPressure    *float64
	AvgGas         *float64
	TotalStink     int64
	TotalSuccess   int64
	TotalRequests  int64
	CreatedAt      time.Time
}

// ReportRepository persists hourly rollups.
type ReportRepository interface {
	// Upsert writes a report keyed on (device_id, hour_start), replacing
	// any previous row for the same window.
	Upsert(ctx context.Context, report *HourlyReport) error

	// ListRange returns reports for a device with hour_start in [from, to),
	// oldest first. An empty device id returns reports for all devices.
	ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]HourlyReport, error)

	// Latest returns the most recent report for a device, or nil when the
	// device has none.
	Latest(ctx context.Context, deviceID string) (*HourlyReport, error)
}
