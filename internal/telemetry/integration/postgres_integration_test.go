package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	alerts "telemetry-hub/internal/alerts/domain"
	alertpg "telemetry-hub/internal/alerts/infrastructure/postgres"
	reportpg "telemetry-hub/internal/reports/infrastructure/postgres"
	reports "telemetry-hub/internal/reports/domain"
	telemetry "telemetry-hub/internal/telemetry/domain"
	telemetrypg "telemetry-hub/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("PG_DSN")
	}
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

func TestReadingRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	if !tableExists(db, "readings") {
		t.Skip("readings missing; run sql/init.sql")
	}

	ctx := context.Background()
	deviceID := "device-it"
	hourStart := time.Date(2026, time.August, 20, 9, 0, 0, 0, time.UTC)

	_, _ = db.ExecContext(ctx, "DELETE FROM readings WHERE device_id = $1", deviceID)

	repo := telemetrypg.NewReadingRepository(db)

	temp := 21.5
	requestID := "req-it-1"
	reading := &telemetry.Reading{
		DeviceID:    deviceID,
		RequestID:   &requestID,
		Temperature: &temp,
		StinkCount:  2,
		IngestedAt:  hourStart.Add(5 * time.Minute),
	}

	inserted, err := repo.InsertReading(ctx, reading)
	if err != nil {
		t.Fatalf("insert reading: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted")
	}

	replay, err := repo.InsertReading(ctx, reading)
	if err != nil {
		t.Fatalf("replay insert: %v", err)
	}
	if replay {
		t.Fatal("replayed request_id must be a no-op")
	}

	last, err := repo.LastReadingTime(ctx, deviceID)
	if err != nil {
		t.Fatalf("last reading time: %v", err)
	}
	if last == nil || !last.Equal(hourStart.Add(5*time.Minute)) {
		t.Fatalf("last reading time mismatch: %v", last)
	}

	aggregates, err := repo.AggregateHour(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("aggregate hour: %v", err)
	}
	var found bool
	for _, agg := range aggregates {
		if agg.DeviceID != deviceID {
			continue
		}
		found = true
		if agg.ReadingCount != 1 {
			t.Fatalf("reading count: got=%d want=1", agg.ReadingCount)
		}
		if agg.AvgTemperature == nil || *agg.AvgTemperature != temp {
			t.Fatalf("avg temperature mismatch: %v", agg.AvgTemperature)
		}
		if agg.TotalStink != 2 {
			t.Fatalf("stink sum: got=%d want=2", agg.TotalStink)
		}
	}
	if !found {
		t.Fatal("expected aggregate row for test device")
	}
}

func TestStateRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	if !tableExists(db, "alert_state") {
		t.Skip("alert_state missing; run sql/init.sql")
	}

	ctx := context.Background()
	deviceID := "device-it-state"
	now := time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC)

	_, _ = db.ExecContext(ctx, "DELETE FROM alert_state WHERE device_id = $1", deviceID)

	repo := alertpg.NewStateRepository(db)

	state, err := repo.Get(ctx, deviceID)
	if err != nil {
		t.Fatalf("get missing state: %v", err)
	}
	if state.LastReadingAt != nil || state.AlertActive || state.StaleMissCount != 0 {
		t.Fatalf("missing row must be zero state: %+v", state)
	}

	active := true
	misses := 3
	if err := repo.Merge(ctx, deviceID, alerts.StatePatch{
		LastReadingAt:  &now,
		LastAlertAt:    &now,
		AlertActive:    &active,
		StaleMissCount: &misses,
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Partial patch keeps untouched columns.
	zero := 0
	inactive := false
	if err := repo.Merge(ctx, deviceID, alerts.StatePatch{
		StaleMissCount: &zero,
		AlertActive:    &inactive,
		ClearLastAlert: true,
	}); err != nil {
		t.Fatalf("merge patch: %v", err)
	}

	state, err = repo.Get(ctx, deviceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.LastReadingAt == nil || !state.LastReadingAt.Equal(now) {
		t.Fatalf("last_reading_at should survive the patch: %+v", state)
	}
	if state.LastAlertAt != nil {
		t.Fatalf("ClearLastAlert should null last_alert_at: %+v", state)
	}
	if state.AlertActive || state.StaleMissCount != 0 {
		t.Fatalf("patch not applied: %+v", state)
	}
}

func TestReportRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	if !tableExists(db, "hourly_reports") {
		t.Skip("hourly_reports missing; run sql/init.sql")
	}

	ctx := context.Background()
	deviceID := "device-it-report"
	hourStart := time.Date(2026, time.August, 20, 11, 0, 0, 0, time.UTC)

	_, _ = db.ExecContext(ctx, "DELETE FROM hourly_reports WHERE device_id = $1", deviceID)

	repo := reportpg.NewReportRepository(db)

	avg := 22.0
	report := &reports.HourlyReport{
		DeviceID:       deviceID,
		HourStart:      hourStart,
		ReadingCount:   12,
		AvgTemperature: &avg,
		TotalStink:     1,
	}
	if err := repo.Upsert(ctx, report); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Second run for the same hour overwrites instead of duplicating.
	report.ReadingCount = 13
	if err := repo.Upsert(ctx, report); err != nil {
		t.Fatalf("upsert rerun: %v", err)
	}

	rows, err := repo.ListRange(ctx, deviceID, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row after rerun, got %d", len(rows))
	}
	if rows[0].ReadingCount != 13 {
		t.Fatalf("rerun should overwrite: got=%d want=13", rows[0].ReadingCount)
	}

	latest, err := repo.Latest(ctx, deviceID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || !latest.HourStart.Equal(hourStart) {
		t.Fatalf("latest mismatch: %+v", latest)
	}
}
