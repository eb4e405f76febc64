package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	alertapp "telemetry-hub/internal/alerts/application"
	alerts "telemetry-hub/internal/alerts/domain"
)

// AlertsHandler serves alert state for the configured device list and
// the manual cycle trigger.
type AlertsHandler struct {
	evaluator *alertapp.Evaluator
	states    alerts.StateRepository
	devices   []alertapp.Device
	logger    *log.Logger
}

// NewAlertsHandler constructs a handler.
func NewAlertsHandler(evaluator *alertapp.Evaluator, states alerts.StateRepository, devices []alertapp.Device, logger *log.Logger) (*AlertsHandler, error) {
	if evaluator == nil {
		return nil, errors.New("alerts handler: nil evaluator")
	}
	if states == nil {
		return nil, errors.New("alerts handler: nil state repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AlertsHandler{evaluator: evaluator, states: states, devices: devices, logger: logger}, nil
}

type alertStateRow struct {
	DeviceID        string  `json:"device_id"`
	Hvac            bool    `json:"hvac"`
	LastReadingAt   *string `json:"last_reading_at"`
	LastAlertAt     *string `json:"last_alert_at"`
	LastHvacAlertAt *string `json:"last_hvac_alert_at"`
	AlertActive     bool    `json:"alert_active"`
	StaleMissCount  int     `json:"stale_miss_count"`
}

// ServeHTTP handles GET /api/v1/alerts.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rows := make([]alertStateRow, 0, len(h.devices))
	for _, device := range h.devices {
		state, err := h.states.Get(r.Context(), device.ID)
		if err != nil {
			h.logger.Printf("alerts list: %s: %v", device.ID, err)
			http.Error(w, "query error", http.StatusInternalServerError)
			return
		}
		rows = append(rows, alertStateRow{
			DeviceID:        device.ID,
			Hvac:            device.Hvac,
			LastReadingAt:   formatTime(state.LastReadingAt),
			LastAlertAt:     formatTime(state.LastAlertAt),
			LastHvacAlertAt: formatTime(state.LastHvacAlertAt),
			AlertActive:     state.AlertActive,
			StaleMissCount:  state.StaleMissCount,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// RunHandler triggers one monitor cycle on demand.
type RunHandler struct {
	evaluator *alertapp.Evaluator
	devices   []alertapp.Device
	logger    *log.Logger
}

// NewRunHandler constructs a manual-trigger handler.
func NewRunHandler(evaluator *alertapp.Evaluator, devices []alertapp.Device, logger *log.Logger) (*RunHandler, error) {
	if evaluator == nil {
		return nil, errors.New("alerts handler: nil evaluator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RunHandler{evaluator: evaluator, devices: devices, logger: logger}, nil
}

// ServeHTTP handles POST /api/v1/monitor/run.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.evaluator.RunCycle(r.Context(), h.devices)
	if err != nil {
		h.logger.Printf("manual cycle: %v", err)
		http.Error(w, "cycle error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"checked_devices": result.CheckedDevices,
		"stale_alerts":    len(result.StaleAlerts),
		"hvac_alerts":     len(result.HvacAlerts),
	})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
