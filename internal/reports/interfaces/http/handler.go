package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"telemetry-hub/internal/observability/metrics"
	reportapp "telemetry-hub/internal/reports/application"
	reports "telemetry-hub/internal/reports/domain"
	"telemetry-hub/internal/reports/interfaces"
)

// ReportsHandler handles rollup APIs under /api/v1/reports.
type ReportsHandler struct {
	generator *reportapp.Generator
	logger    *log.Logger
}

// NewReportsHandler constructs a handler.
func NewReportsHandler(generator *reportapp.Generator, logger *log.Logger) (*ReportsHandler, error) {
	if generator == nil {
		return nil, errors.New("reports handler: nil generator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReportsHandler{generator: generator, logger: logger}, nil
}

type reportRow struct {
	DeviceID       string   `json:"device_id"`
	HourStart      string   `json:"hour_start"`
	ReadingCount   int64    `json:"reading_count"`
	AvgTemperature *float64 `json:"avg_temperature,omitempty"`
	MaxTemperature *float64 `json:"max_temperature,omitempty"`
	MinTemperature *float64 `json:"min_temperature,omitempty"`
	AvgHumidity    *float64 `json:"avg_humidity,omitempty"`
	AvgPressure    *float64 `json:"avg_pressure,omitempty"`
	AvgGas         *float64 `json:"avg_gas,omitempty"`
	TotalStink     int64    `json:"total_stink_count"`
	TotalSuccess   int64    `json:"total_success_count"`
	TotalRequests  int64    `json:"total_requests"`
}

// ServeHTTP dispatches report routes.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/reports" && r.Method == http.MethodGet {
		h.handleList(w, r)
		return
	}
	if path == "/api/v1/reports/run" && r.Method == http.MethodPost {
		h.handleRun(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/reports/") {
		rest := strings.TrimPrefix(path, "/api/v1/reports/")
		h.handleByDevice(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *ReportsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	from, to, err := parseRange(r, 24*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.generator.ListRange(r.Context(), deviceID, from, to)
	if err != nil {
		h.logger.Printf("reports list: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toRows(rows))
}

func (h *ReportsHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hour string `json:"hour"`
	}
	if r.Body != nil {
		// An empty body defaults to the previous full hour.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var rows []reports.HourlyReport
	var err error
	if req.Hour == "" {
		rows, err = h.generator.GenerateHourly(r.Context())
	} else {
		hour, parseErr := time.Parse(time.RFC3339, req.Hour)
		if parseErr != nil {
			http.Error(w, "invalid hour", http.StatusBadRequest)
			return
		}
		rows, err = h.generator.AggregateWindow(r.Context(), hour)
	}
	if err != nil {
		h.logger.Printf("reports run: %v", err)
		http.Error(w, "aggregation error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"generated": len(rows), "reports": toRows(rows)})
}

func (h *ReportsHandler) handleByDevice(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID, action := parts[0], parts[1]
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "latest":
		h.handleLatest(w, r, deviceID)
	case "export.xlsx":
		h.handleExportXLSX(w, r, deviceID)
	case "export.pdf":
		h.handleExportPDF(w, r, deviceID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ReportsHandler) handleLatest(w http.ResponseWriter, r *http.Request, deviceID string) {
	latest, err := h.generator.LatestSummary(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("reports latest: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if latest == nil {
		http.Error(w, "no reports", http.StatusNotFound)
		return
	}
	writeJSON(w, toRow(*latest))
}

func (h *ReportsHandler) handleExportXLSX(w http.ResponseWriter, r *http.Request, deviceID string) {
	started := time.Now()
	from, to, err := parseRange(r, 7*24*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.generator.ListRange(r.Context(), deviceID, from, to)
	if err != nil {
		h.logger.Printf("reports export: %v", err)
		metrics.ObserveReportExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	data, err := interfaces.BuildHourlyXLSX(rows)
	if err != nil {
		h.logger.Printf("reports export: build xlsx: %v", err)
		metrics.ObserveReportExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport("xlsx", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-hourly.xlsx", deviceID))
	_, _ = w.Write(data)
}

func (h *ReportsHandler) handleExportPDF(w http.ResponseWriter, r *http.Request, deviceID string) {
	started := time.Now()
	dayParam := r.URL.Query().Get("day")
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if dayParam != "" {
		parsed, err := time.Parse("2006-01-02", dayParam)
		if err != nil {
			http.Error(w, "invalid day", http.StatusBadRequest)
			return
		}
		day = parsed.UTC()
	}
	rows, err := h.generator.ListRange(r.Context(), deviceID, day, day.Add(24*time.Hour))
	if err != nil {
		h.logger.Printf("reports export: %v", err)
		metrics.ObserveReportExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	data, err := interfaces.BuildDailyPDF(deviceID, day, rows)
	if err != nil {
		h.logger.Printf("reports export: build pdf: %v", err)
		metrics.ObserveReportExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport("pdf", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.pdf", deviceID, day.Format("2006-01-02")))
	_, _ = w.Write(data)
}

func parseRange(r *http.Request, fallback time.Duration) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-fallback)
	to := now
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.New("invalid from")
		}
		from = parsed.UTC()
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.New("invalid to")
		}
		to = parsed.UTC()
	}
	if !from.Before(to) {
		return from, to, errors.New("from must precede to")
	}
	return from, to, nil
}

func toRows(list []reports.HourlyReport) []reportRow {
	rows := make([]reportRow, 0, len(list))
	for _, report := range list {
		rows = append(rows, toRow(report))
	}
	return rows
}

func toRow(report reports.HourlyReport) reportRow {
	return reportRow{
		DeviceID:       report.DeviceID,
		HourStart:      report.HourStart.UTC().Format(time.RFC3339),
		ReadingCount:   report.ReadingCount,
		AvgTemperature: report.AvgTemperature,
		MaxTemperature: report.MaxTemperature,
		MinTemperature: report.MinTemperature,
		AvgHumidity:    report.AvgHumidity,
		AvgPressure:    report.AvgPressure,
		AvgGas:         report.AvgGas,
		TotalStink:     report.TotalStink,
		TotalSuccess:   report.TotalSuccess,
		TotalRequests:  report.TotalRequests,
	}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
