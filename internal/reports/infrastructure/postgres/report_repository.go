package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	reports "telemetry-hub/internal/reports/domain"
)

// ReportRepository is a Postgres implementation for hourly rollups.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository constructs a repository.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Upsert writes a report; re-running a window replaces the stored row.
func (r *ReportRepository) Upsert(ctx context.Context, report *reports.HourlyReport) error {
	if r == nil || r.db == nil {
		return errors.New("report repo: nil db")
	}
	if report == nil {
		return errors.New("report repo: nil report")
	}
	if report.DeviceID == "" {
		return errors.New("report repo: empty device id")
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO hourly_reports (
	device_id, hour_start, reading_count,
	avg_temperature, max_temperature, min_temperature,
	avg_humidity, avg_pressure, avg_gas,
	total_stink_count, total_success_count, total_requests
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (device_id, hour_start) DO UPDATE SET
	reading_count = EXCLUDED.reading_count,
	avg_temperature = EXCLUDED.avg_temperature,
	max_temperature = EXCLUDED.max_temperature,
	min_temperature = EXCLUDED.min_temperature,
	avg_humidity = EXCLUDED.avg_humidity,
	avg_pressure = EXCLUDED.avg_pressure,
	avg_gas = EXCLUDED.avg_gas,
	total_stink_count = EXCLUDED.total_stink_count,
	total_success_count = EXCLUDED.total_success_count,
	total_requests = EXCLUDED.total_requests,
	created_at = NOW()`,
		report.DeviceID,
		report.HourStart.UTC(),
		report.ReadingCount,
		nullFloat(report.AvgTemperature),
		nullFloat(report.MaxTemperature),
		nullFloat(report.MinTemperature),
		nullFloat(report.AvgHumidity),
		nullFloat(report.AvgPressure),
		nullFloat(report.AvgGas),
		report.TotalStink,
		report.TotalSuccess,
		report.TotalRequests,
	)
	return err
}

// ListRange returns reports with hour_start in [from, to), oldest first.
func (r *ReportRepository) ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]reports.HourlyReport, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}

	query := `
SELECT device_id, hour_start, reading_count,
       avg_temperature, max_temperature, min_temperature,
       avg_humidity, avg_pressure, avg_gas,
       total_stink_count, total_success_count, total_requests, created_at
FROM hourly_reports
WHERE hour_start >= $1 AND hour_start < $2`
	args := []any{from.UTC(), to.UTC()}
	if deviceID != "" {
		query += " AND device_id = $3"
		args = append(args, deviceID)
	}
	query += " ORDER BY hour_start ASC, device_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reports.HourlyReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, report)
	}
	return result, rows.Err()
}

// Latest returns the newest report for a device, or nil when none exists.
func (r *ReportRepository) Latest(ctx context.Context, deviceID string) (*reports.HourlyReport, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("report repo: empty device id")
	}

	row := r.db.QueryRowContext(ctx, `
SELECT device_id, hour_start, reading_count,
       avg_temperature, max_temperature, min_temperature,
       avg_humidity, avg_pressure, avg_gas,
       total_stink_count, total_success_count, total_requests, created_at
FROM hourly_reports
WHERE device_id = $1
ORDER BY hour_start DESC
LIMIT 1`, deviceID)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (reports.HourlyReport, error) {
	var report reports.HourlyReport
	var avgTemp, maxTemp, minTemp, avgHum, avgPress, avgGas sql.NullFloat64
	err := row.Scan(
		&report.DeviceID,
		&report.HourStart,
		&report.ReadingCount,
		&avgTemp,
		&maxTemp,
		&minTemp,
		&avgHum,
		&avgPress,
		&avgGas,
		&report.TotalStink,
		&report.TotalSuccess,
		&report.TotalRequests,
		&report.CreatedAt,
	)
	if err != nil {
		return report, err
	}
	report.HourStart = report.HourStart.UTC()
	report.CreatedAt = report.CreatedAt.UTC()
	report.AvgTemperature = floatPtr(avgTemp)
	report.MaxTemperature = floatPtr(maxTemp)
	report.MinTemperature = floatPtr(minTemp)
	report.AvgHumidity = floatPtr(avgHum)
	report.AvgPressure = floatPtr(avgPress)
	report.AvgGas = floatPtr(avgGas)
	return report, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
