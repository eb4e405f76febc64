package devicehttp

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"telemetry-hub/internal/telemetry/application"
	telemetry "telemetry-hub/internal/telemetry/domain"
)

// IngestHandler accepts readings posted by devices.
type IngestHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService, logger *log.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("devicehttp: nil ingest service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

type ingestResponse struct {
	Status   string `json:"status"`
	DeviceID string `json:"device_id,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
}

// ServeHTTP ingests one reading. A replayed request_id answers 200 with
// cached=true: devices retry blindly and must never see a failure for a
// replay.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload telemetry.IngestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Printf("ingest: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), payload, body)
	if err != nil {
		if errors.Is(err, application.ErrInvalidPayload) {
			h.logger.Printf("ingest: invalid payload: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Printf("ingest: insert error: %v", err)
		http.Error(w, "insert error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Status:   "ok",
		DeviceID: result.Reading.DeviceID,
		Cached:   result.Duplicate,
	})
}

// DevicesHandler lists devices seen since midnight UTC.
type DevicesHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewDevicesHandler constructs a devices handler.
func NewDevicesHandler(service *application.IngestService, logger *log.Logger) (*DevicesHandler, error) {
	if service == nil {
		return nil, errors.New("devicehttp: nil ingest service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DevicesHandler{service: service, logger: logger}, nil
}

type devicesResponse struct {
	Devices []string `json:"devices"`
	Since   string   `json:"since"`
}

// ServeHTTP handles GET /devices.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	devices, since, err := h.service.ActiveDevices(r.Context())
	if err != nil {
		h.logger.Printf("devices: query error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []string{}
	}
	writeJSON(w, http.StatusOK, devicesResponse{
		Devices: devices,
		Since:   since.Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
