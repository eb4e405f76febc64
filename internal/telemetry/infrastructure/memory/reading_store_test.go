package memory

import (
	"context"
	"testing"
	"time"

	telemetry "telemetry-hub/internal/telemetry/domain"
)

func strPtr(s string) *string    { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestInsertReadingDedup(t *testing.T) {
	store := NewReadingStore()
	ctx := context.Background()

	reading := &telemetry.Reading{
		DeviceID:   "pico_w_closet",
		RequestID:  strPtr("req-1"),
		IngestedAt: time.Now().UTC(),
	}

	inserted, err := store.InsertReading(ctx, reading)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to report inserted=true")
	}

	inserted, err = store.InsertReading(ctx, reading)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate to report inserted=false")
	}

	// Same request id on a different device is not a duplicate.
	other := &telemetry.Reading{
		DeviceID:   "esp32_c6_lab",
		RequestID:  strPtr("req-1"),
		IngestedAt: time.Now().UTC(),
	}
	inserted, err = store.InsertReading(ctx, other)
	if err != nil {
		t.Fatalf("insert other device: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert for different device")
	}
}

func TestInsertReadingNilRequestIDNeverDeduplicated(t *testing.T) {
	store := NewReadingStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inserted, err := store.InsertReading(ctx, &telemetry.Reading{
			DeviceID:   "pico_w_closet",
			IngestedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if !inserted {
			t.Fatalf("insert %d: expected inserted=true", i)
		}
	}
}

func TestAggregateHourNullSafeAverages(t *testing.T) {
	store := NewReadingStore()
	ctx := context.Background()
	hourStart := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	humidities := []*float64{floatPtr(40), nil, floatPtr(44)}
	for i, humidity := range humidities {
		_, err := store.InsertReading(ctx, &telemetry.Reading{
			DeviceID:    "esp32_c6_lab",
			Temperature: floatPtr(20 + float64(i)),
			Humidity:    humidity,
			StinkCount:  1,
			IngestedAt:  hourStart.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	aggregates, err := store.AggregateHour(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(aggregates))
	}
	agg := aggregates[0]
	if agg.ReadingCount != 3 {
		t.Fatalf("reading count: got %d", agg.ReadingCount)
	}
	if agg.AvgHumidity == nil || *agg.AvgHumidity != 42 {
		t.Fatalf("avg humidity: got %v, want 42", agg.AvgHumidity)
	}
	if agg.AvgTemperature == nil || *agg.AvgTemperature != 21 {
		t.Fatalf("avg temperature: got %v, want 21", agg.AvgTemperature)
	}
	if agg.MinTemperature == nil || *agg.MinTemperature != 20 {
		t.Fatalf("min temperature: got %v", agg.MinTemperature)
	}
	if agg.MaxTemperature == nil || *agg.MaxTemperature != 22 {
		t.Fatalf("max temperature: got %v", agg.MaxTemperature)
	}
	if agg.TotalStink != 3 {
		t.Fatalf("stink sum: got %d", agg.TotalStink)
	}
	if agg.AvgPressure != nil || agg.AvgGas != nil {
		t.Fatal("expected nil averages for all-null fields")
	}
}

func TestAggregateHourWindowBoundaries(t *testing.T) {
	store := NewReadingStore()
	ctx := context.Background()
	hourStart := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	times := []time.Time{
		hourStart.Add(-time.Second),  // before window
		hourStart,                    // inclusive start
		hourStart.Add(time.Hour - 1), // inside
		hourStart.Add(time.Hour),     // exclusive end
	}
	for _, at := range times {
		if _, err := store.InsertReading(ctx, &telemetry.Reading{DeviceID: "d", IngestedAt: at}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	aggregates, err := store.AggregateHour(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(aggregates) != 1 || aggregates[0].ReadingCount != 2 {
		t.Fatalf("expected 2 readings in window, got %+v", aggregates)
	}
}

func TestLatestTemperatureSkipsNulls(t *testing.T) {
	store := NewReadingStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _ = store.InsertReading(ctx, &telemetry.Reading{
		DeviceID: "esp32_c6_lab", Temperature: floatPtr(22.5), IngestedAt: base,
	})
	_, _ = store.InsertReading(ctx, &telemetry.Reading{
		DeviceID: "esp32_c6_lab", IngestedAt: base.Add(time.Minute),
	})

	at, temp, err := store.LatestTemperature(ctx, "esp32_c6_lab")
	if err != nil {
		t.Fatalf("latest temperature: %v", err)
	}
	if temp == nil || *temp != 22.5 {
		t.Fatalf("temperature: got %v", temp)
	}
	if at == nil || !at.Equal(base) {
		t.Fatalf("timestamp: got %v", at)
	}

	at, temp, err = store.LatestTemperature(ctx, "unknown")
	if err != nil {
		t.Fatalf("latest temperature unknown: %v", err)
	}
	if at != nil || temp != nil {
		t.Fatal("expected nil result for unknown device")
	}
}
