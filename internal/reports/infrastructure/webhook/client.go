package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"telemetry-hub/internal/notify"
	telemetry "telemetry-hub/internal/telemetry/domain"
)

type reportPayload struct {
	RequestID      string   `json:"request_id"`
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

// Client appends hourly rollups to a spreadsheet-backed webhook. The
// receiver deduplicates on request_id, which is derived from the report
// identity so a re-run of the same window replays the same id.
type Client struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("report webhook: empty url")
	}
	client := &Client{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SendHourlyReport posts one rollup row. Failures are reported to the
// caller, never raised.
func (c *Client) SendHourlyReport(ctx context.Context, deviceID string, report notify.ReportData) bool {
	if c == nil || c.url == "" {
		return false
	}
	payload := reportPayload{
		RequestID:      ReportRequestID(deviceID, report.HourStart),
		DeviceID:       deviceID,
		HourStart:      report.HourStart.UTC().Format(time.RFC3339),
		ReadingCount:   report.ReadingCount,
		AvgTemperature: report.AvgTemperature,
		MaxTemperature: report.MaxTemperature,
		MinTemperature: report.MinTemperature,
		AvgHumidity:    report.AvgHumidity,
		AvgPressure:    report.AvgPressure,
		AvgGas:         scaleGas(deviceID, report.AvgGas),
		TotalStink:     report.TotalStink,
		TotalSuccess:   report.TotalSuccess,
		TotalRequests:  report.TotalRequests,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Printf("report webhook: marshal failed: %v", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Printf("report webhook: build request failed: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Printf("report webhook: post failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Printf("report webhook: non-2xx response %d", resp.StatusCode)
		return false
	}
	return true
}

// ReportRequestID derives a stable dedup id from the report identity.
func ReportRequestID(deviceID string, hourStart time.Time) string {
	sum := sha256.Sum256([]byte(deviceID + ":" + hourStart.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:16]
}

// Pico-class devices already report gas in kOhms; the rest report ohms
// and need scaling for the sheet column.
func scaleGas(deviceID string, gas *float64) *float64 {
	if gas == nil || telemetry.IsPicoClass(deviceID) {
		return gas
	}
	scaled := *gas / 1000.0
	return &scaled
}
