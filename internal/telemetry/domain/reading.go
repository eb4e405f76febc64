package telemetry

import (
	"context"
	"time"
)

// Reading is one stored telemetry sample. Rows are immutable after insert.
type Reading struct {
	DeviceID    string
	DeviceTS    *time.Time
	RequestID   *string
	Firmware    *string
	SensorError *string

	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Gas         *float64

	RawADC  *int64
	Voltage *float64

	StinkCount    int64
	RedirectCount int64
	SuccessCount  int64
	TotalRequests int64
	UptimeCycles  int64
	ResetCount    int64

	// RawPayload is the ingest body as received, kept for diagnosis.
	RawPayload []byte

	IngestedAt time.Time
}

// HourlyAggregate is one per-device aggregate row for a one-hour window.
// Averages are null-safe: nulls are excluded, not treated as zero.
type HourlyAggregate struct {
	DeviceID       string
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
}

// ReadingRepository persists and queries raw readings.
type ReadingRepository interface {
	// InsertReading stores a reading. It reports false when the reading was
	// a duplicate of an already stored (device_id, request_id) pair.
	InsertReading(ctx context.Context, reading *Reading) (bool, error)

	// LastReadingTime returns the newest ingested_at for a device, or nil
	// when the device has no readings.
	LastReadingTime(ctx context.Context, deviceID string) (*time.Time, error)

	// LatestTemperature returns the newest non-null temperature for a
	// device with its ingest time, or (nil, nil) when none exists.
	LatestTemperature(ctx context.Context, deviceID string) (*time.Time, *float64, error)

	// AggregateHour groups readings ingested in [hourStart, hourEnd) by
	// device. Devices without readings in the window produce no row.
	AggregateHour(ctx context.Context, hourStart, hourEnd time.Time) ([]HourlyAggregate, error)

	// DevicesWithReadingsSince lists device ids seen since the given time.
	DevicesWithReadingsSince(ctx context.Context, since time.Time) ([]string, error)
}
