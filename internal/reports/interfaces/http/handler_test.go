package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	reportapp "telemetry-hub/internal/reports/application"
	reportmem "telemetry-hub/internal/reports/infrastructure/memory"
	telemetry "telemetry-hub/internal/telemetry/domain"
	telemem "telemetry-hub/internal/telemetry/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestHandler(t *testing.T) (*ReportsHandler, *telemem.ReadingStore, time.Time) {
	t.Helper()
	readings := telemem.NewReadingStore()
	store := reportmem.NewReportStore()
	now := time.Date(2026, time.August, 20, 14, 10, 0, 0, time.UTC)
	logger := log.New(io.Discard, "", 0)

	generator, err := reportapp.NewGenerator(readings, store,
		reportapp.WithClock(fixedClock{now: now}),
		reportapp.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	handler, err := NewReportsHandler(generator, logger)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, readings, now
}

func seedReading(t *testing.T, store *telemem.ReadingStore, deviceID string, at time.Time, temp float64) {
	t.Helper()
	if _, err := store.InsertReading(context.Background(), &telemetry.Reading{
		DeviceID:    deviceID,
		Temperature: &temp,
		StinkCount:  1,
		IngestedAt:  at,
	}); err != nil {
		t.Fatalf("insert reading: %v", err)
	}
}

func runWindow(t *testing.T, handler *ReportsHandler, hour time.Time) {
	t.Helper()
	body := strings.NewReader(`{"hour":"` + hour.Format(time.RFC3339) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/run", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("run window: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRunAggregatesRequestedHour(t *testing.T) {
	handler, readings, now := newTestHandler(t)
	hour := now.Truncate(time.Hour).Add(-time.Hour)
	seedReading(t, readings, "pico_w_closet", hour.Add(10*time.Minute), 21.0)
	seedReading(t, readings, "pico_w_closet", hour.Add(20*time.Minute), 23.0)

	body := strings.NewReader(`{"hour":"` + hour.Format(time.RFC3339) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/run", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Generated int         `json:"generated"`
		Reports   []reportRow `json:"reports"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Generated != 1 {
		t.Fatalf("expected one device row: %+v", result)
	}
	row := result.Reports[0]
	if row.ReadingCount != 2 || row.AvgTemperature == nil || *row.AvgTemperature != 22.0 {
		t.Fatalf("aggregate mismatch: %+v", row)
	}
}

func TestRunWithEmptyBodyUsesPreviousHour(t *testing.T) {
	handler, readings, now := newTestHandler(t)
	previous := now.Truncate(time.Hour).Add(-time.Hour)
	seedReading(t, readings, "pico_w_closet", previous.Add(5*time.Minute), 20.0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/run", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), previous.Format(time.RFC3339)) {
		t.Fatalf("expected previous hour %s in response: %s", previous.Format(time.RFC3339), resp.Body.String())
	}
}

func TestRunRejectsBadHour(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/run", strings.NewReader(`{"hour":"yesterday"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListFiltersByDevice(t *testing.T) {
	handler, readings, now := newTestHandler(t)
	hour := now.Truncate(time.Hour).Add(-time.Hour)
	seedReading(t, readings, "pico_w_closet", hour.Add(time.Minute), 21.0)
	seedReading(t, readings, "esp32_c6_lab", hour.Add(time.Minute), 24.0)
	runWindow(t, handler, hour)

	from := hour.Format(time.RFC3339)
	to := hour.Add(time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports?device_id=esp32_c6_lab&from="+from+"&to="+to, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var rows []reportRow
	if err := json.Unmarshal(resp.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rows) != 1 || rows[0].DeviceID != "esp32_c6_lab" {
		t.Fatalf("device filter failed: %+v", rows)
	}
}

func TestLatestAnswers404WhenEmpty(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/pico_w_closet/latest", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestLatestReturnsNewestRollup(t *testing.T) {
	handler, readings, now := newTestHandler(t)
	older := now.Truncate(time.Hour).Add(-2 * time.Hour)
	newer := now.Truncate(time.Hour).Add(-time.Hour)
	seedReading(t, readings, "pico_w_closet", older.Add(time.Minute), 19.0)
	seedReading(t, readings, "pico_w_closet", newer.Add(time.Minute), 21.0)
	runWindow(t, handler, older)
	runWindow(t, handler, newer)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/pico_w_closet/latest", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var row reportRow
	if err := json.Unmarshal(resp.Body.Bytes(), &row); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if row.HourStart != newer.Format(time.RFC3339) {
		t.Fatalf("latest should be the newest hour: %+v", row)
	}
}

func TestExportXLSXSetsAttachmentHeaders(t *testing.T) {
	handler, readings, now := newTestHandler(t)
	hour := now.Truncate(time.Hour).Add(-time.Hour)
	seedReading(t, readings, "pico_w_closet", hour.Add(time.Minute), 21.0)
	runWindow(t, handler, hour)

	from := hour.Format(time.RFC3339)
	to := hour.Add(time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/pico_w_closet/export.xlsx?from="+from+"&to="+to, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type: %q", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.Contains(cd, "pico_w_closet-hourly.xlsx") {
		t.Fatalf("content disposition: %q", cd)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("empty workbook body")
	}
}

func TestListRejectsInvertedRange(t *testing.T) {
	handler, _, now := newTestHandler(t)
	from := now.Format(time.RFC3339)
	to := now.Add(-time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports?from="+from+"&to="+to, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
