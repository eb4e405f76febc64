package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "telemetry-hub/internal/telemetry/domain"
)

// ReadingRepository is a Postgres implementation for raw readings.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// InsertReading stores a reading, deduplicating on (device_id, request_id)
// when a request id is present. Duplicate submissions are a no-op and
// report inserted=false; correctness under concurrent replays relies on
// the partial unique index, not on a read-then-write check.
func (r *ReadingRepository) InsertReading(ctx context.Context, reading *telemetry.Reading) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("reading repo: nil db")
	}
	if reading == nil {
		return false, errors.New("reading repo: nil reading")
	}
	if reading.DeviceID == "" {
		return false, errors.New("reading repo: empty device id")
	}
	ingestedAt := reading.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO readings (
	device_id, device_ts, request_id, firmware, sensor_error,
	temperature, humidity, pressure, gas,
	raw_adc, voltage,
	stink_count, redirect_count, success_count,
	total_requests, uptime_cycles, reset_count,
	payload, ingested_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9,
	$10, $11,
	$12, $13, $14,
	$15, $16, $17,
	$18, $19
)
ON CONFLICT (device_id, request_id) WHERE request_id IS NOT NULL DO NOTHING`,
		reading.DeviceID,
		nullTime(reading.DeviceTS),
		nullString(reading.RequestID),
		nullString(reading.Firmware),
		nullString(reading.SensorError),
		nullFloat(reading.Temperature),
		nullFloat(reading.Humidity),
		nullFloat(reading.Pressure),
		nullFloat(reading.Gas),
		nullInt(reading.RawADC),
		nullFloat(reading.Voltage),
		reading.StinkCount,
		reading.RedirectCount,
		reading.SuccessCount,
		reading.TotalRequests,
		reading.UptimeCycles,
		reading.ResetCount,
		nullBytes(reading.RawPayload),
		ingestedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// LastReadingTime returns the newest ingested_at for a device.
func (r *ReadingRepository) LastReadingTime(ctx context.Context, deviceID string) (*time.Time, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(ingested_at) FROM readings WHERE device_id = $1`,
		deviceID,
	).Scan(&last)
	if err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

// LatestTemperature returns the newest non-null temperature for a device.
func (r *ReadingRepository) LatestTemperature(ctx context.Context, deviceID string) (*time.Time, *float64, error) {
	if r == nil || r.db == nil {
		return nil, nil, errors.New("reading repo: nil db")
	}
	var at time.Time
	var temp float64
	err := r.db.QueryRowContext(ctx, `
SELECT ingested_at, temperature
FROM readings
WHERE device_id = $1 AND temperature IS NOT NULL
ORDER BY ingested_at DESC
LIMIT 1`, deviceID).Scan(&at, &temp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	at = at.UTC()
	return &at, &temp, nil
}

// AggregateHour groups readings ingested in [hourStart, hourEnd) by device.
// AVG/MIN/MAX skip nulls; counter sums treat null as zero.
func (r *ReadingRepository) AggregateHour(ctx context.Context, hourStart, hourEnd time.Time) ([]telemetry.HourlyAggregate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT
	device_id,
	COUNT(*) AS reading_count,
	AVG(temperature) AS avg_temperature,
	MAX(temperature) AS max_temperature,
	MIN(temperature) AS min_temperature,
	AVG(humidity) AS avg_humidity,
	AVG(pressure) AS avg_pressure,
	AVG(gas) AS avg_gas,
	COALESCE(SUM(stink_count), 0) AS total_stink_count,
	COALESCE(SUM(success_count), 0) AS total_success_count,
	COALESCE(SUM(total_requests), 0) AS total_requests
FROM readings
WHERE ingested_at >= $1 AND ingested_at < $2
GROUP BY device_id
ORDER BY device_id`, hourStart, hourEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []telemetry.HourlyAggregate
	for rows.Next() {
		var agg telemetry.HourlyAggregate
		var avgTemp, maxTemp, minTemp, avgHumidity, avgPressure, avgGas sql.NullFloat64
		if err := rows.Scan(
			&agg.DeviceID,
			&agg.ReadingCount,
			&avgTemp,
			&maxTemp,
			&minTemp,
			&avgHumidity,
			&avgPressure,
			&avgGas,
			&agg.TotalStink,
			&agg.TotalSuccess,
			&agg.TotalRequests,
		); err != nil {
			return nil, err
		}
		agg.AvgTemperature = floatPtr(avgTemp)
		agg.MaxTemperature = floatPtr(maxTemp)
		agg.MinTemperature = floatPtr(minTemp)
		agg.AvgHumidity = floatPtr(avgHumidity)
		agg.AvgPressure = floatPtr(avgPressure)
		agg.AvgGas = floatPtr(avgGas)
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

// DevicesWithReadingsSince lists device ids with readings since the given time.
func (r *ReadingRepository) DevicesWithReadingsSince(ctx context.Context, since time.Time) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT device_id FROM readings WHERE ingested_at >= $1 ORDER BY device_id`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		devices = append(devices, id)
	}
	return devices, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
