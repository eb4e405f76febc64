package application

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"telemetry-hub/internal/notify"
	reportmem "telemetry-hub/internal/reports/infrastructure/memory"
	telemetry "telemetry-hub/internal/telemetry/domain"
	telemem "telemetry-hub/internal/telemetry/infrastructure/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type recordingReportSink struct {
	mu        sync.Mutex
	delivered []string
	ok        bool
}

func (s *recordingReportSink) SendHourlyReport(_ context.Context, deviceID string, _ notify.ReportData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, deviceID)
	return s.ok
}

func newGeneratorFixture(t *testing.T, now time.Time, sinks ...ReportSink) (*Generator, *telemem.ReadingStore, *reportmem.ReportStore) {
	t.Helper()
	readings := telemem.NewReadingStore()
	store := reportmem.NewReportStore()
	gen, err := NewGenerator(readings, store,
		WithSinks(sinks...),
		WithClock(&fakeClock{now: now.UTC()}),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return gen, readings, store
}

func insertAt(t *testing.T, store *telemem.ReadingStore, deviceID string, at time.Time, temperature *float64) {
	t.Helper()
	_, err := store.InsertReading(context.Background(), &telemetry.Reading{
		DeviceID:    deviceID,
		Temperature: temperature,
		StinkCount:  1,
		IngestedAt:  at.UTC(),
	})
	if err != nil {
		t.Fatalf("insert reading: %v", err)
	}
}

func TestAggregateWindowIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	sink := &recordingReportSink{ok: true}
	gen, readings, store := newGeneratorFixture(t, now, sink)

	hour := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	temp := 21.5
	insertAt(t, readings, "pico_w_closet", hour.Add(5*time.Minute), &temp)
	insertAt(t, readings, "pico_w_closet", hour.Add(20*time.Minute), nil)
	insertAt(t, readings, "pico_w_closet", hour.Add(55*time.Minute), &temp)
	insertAt(t, readings, "pico_w_closet", hour.Add(61*time.Minute), &temp)

	first, err := gen.AggregateWindow(context.Background(), hour)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := gen.AggregateWindow(context.Background(), hour)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one report per run, got %d and %d", len(first), len(second))
	}
	if first[0].ReadingCount != 3 || second[0].ReadingCount != 3 {
		t.Fatalf("window must include only [hour, hour+1h): %+v", second[0])
	}

	// Re-running the window replaces the stored row rather than adding one.
	stored, err := store.ListRange(context.Background(), "pico_w_closet", hour, hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored row after re-run, got %d", len(stored))
	}
	if len(sink.delivered) != 2 {
		t.Fatalf("each run distributes once, got %d deliveries", len(sink.delivered))
	}
}

func TestGenerateHourlyUsesPreviousFullHour(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	gen, readings, _ := newGeneratorFixture(t, now)

	insertAt(t, readings, "pico_w_closet", time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC), nil)
	insertAt(t, readings, "pico_w_closet", time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC), nil)

	result, err := gen.GenerateHourly(context.Background())
	if err != nil {
		t.Fatalf("generate hourly: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one report, got %d", len(result))
	}
	want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !result[0].HourStart.Equal(want) {
		t.Fatalf("hour start: got %s want %s", result[0].HourStart, want)
	}
	if result[0].ReadingCount != 1 {
		t.Fatalf("current-hour reading must be excluded: %+v", result[0])
	}
}

func TestEmptyWindowProducesNoRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen, _, store := newGeneratorFixture(t, now)

	result, err := gen.GenerateHourly(context.Background())
	if err != nil {
		t.Fatalf("generate hourly: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("no synthetic zero-rows expected, got %+v", result)
	}
	stored, err := store.ListRange(context.Background(), "", now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("nothing should be persisted, got %d rows", len(stored))
	}
}

func TestDistributeIsFailSoftPerSink(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	failing := &recordingReportSink{ok: false}
	healthy := &recordingReportSink{ok: true}
	gen, readings, store := newGeneratorFixture(t, now, failing, healthy)

	insertAt(t, readings, "pico_w_closet", time.Date(2026, 3, 1, 11, 10, 0, 0, time.UTC), nil)

	result, err := gen.GenerateHourly(context.Background())
	if err != nil {
		t.Fatalf("sink failure must not fail generation: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one report, got %d", len(result))
	}
	if len(failing.delivered) != 1 || len(healthy.delivered) != 1 {
		t.Fatalf("both sinks must be tried: failing=%d healthy=%d", len(failing.delivered), len(healthy.delivered))
	}

	latest, err := store.Latest(context.Background(), "pico_w_closet")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil {
		t.Fatal("persistence must happen before delivery")
	}
}

func TestLatestSummary(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 0, 5, 0, time.UTC)
	gen, readings, _ := newGeneratorFixture(t, now)

	insertAt(t, readings, "pico_w_closet", time.Date(2026, 3, 1, 11, 10, 0, 0, time.UTC), nil)
	insertAt(t, readings, "pico_w_closet", time.Date(2026, 3, 1, 13, 10, 0, 0, time.UTC), nil)

	if _, err := gen.AggregateWindow(context.Background(), time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("aggregate 11h: %v", err)
	}
	if _, err := gen.AggregateWindow(context.Background(), time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("aggregate 13h: %v", err)
	}

	latest, err := gen.LatestSummary(context.Background(), "pico_w_closet")
	if err != nil {
		t.Fatalf("latest summary: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a summary")
	}
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !latest.HourStart.Equal(want) {
		t.Fatalf("latest hour: got %s want %s", latest.HourStart, want)
	}
}
