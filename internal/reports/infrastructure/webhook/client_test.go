package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telemetry-hub/internal/notify"
)

func TestReportRequestIDIsDeterministic(t *testing.T) {
	hour := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := ReportRequestID("pico_w_closet", hour)
	b := ReportRequestID("pico_w_closet", hour)
	if a != b {
		t.Fatalf("same identity must yield the same id: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("id length: %d", len(a))
	}
	if a == ReportRequestID("esp32_c6_lab", hour) {
		t.Fatal("different devices must yield different ids")
	}
	if a == ReportRequestID("pico_w_closet", hour.Add(time.Hour)) {
		t.Fatal("different hours must yield different ids")
	}
}

func TestSendHourlyReportPayload(t *testing.T) {
	var got reportPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	hour := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gas := 52000.0
	if !client.SendHourlyReport(context.Background(), "esp32_c6_lab", notify.ReportData{
		HourStart:    hour,
		ReadingCount: 12,
		AvgGas:       &gas,
	}) {
		t.Fatal("delivery should succeed")
	}

	if got.RequestID != ReportRequestID("esp32_c6_lab", hour) {
		t.Fatalf("request id: %q", got.RequestID)
	}
	if got.HourStart != "2026-03-01T10:00:00Z" {
		t.Fatalf("hour start: %q", got.HourStart)
	}
	if got.AvgGas == nil || *got.AvgGas != 52.0 {
		t.Fatalf("gas should be scaled to kOhms for esp32-class devices: %+v", got.AvgGas)
	}
}

func TestSendHourlyReportKeepsPicoGasUnscaled(t *testing.T) {
	var got reportPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	gas := 48.5
	client.SendHourlyReport(context.Background(), "pico_w_closet", notify.ReportData{
		HourStart: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		AvgGas:    &gas,
	})
	if got.AvgGas == nil || *got.AvgGas != 48.5 {
		t.Fatalf("pico gas is already kOhms: %+v", got.AvgGas)
	}
}

func TestSendHourlyReportNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.SendHourlyReport(context.Background(), "pico_w_closet", notify.ReportData{HourStart: time.Now()}) {
		t.Fatal("non-2xx must report failure")
	}
}
