package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"telemetry-hub/internal/notify"
)

// AlertEvent is the wire shape pushed to SSE subscribers.
type AlertEvent struct {
	Type           string   `json:"type"`
	DeviceID       string   `json:"device_id"`
	MinutesStalled *int     `json:"minutes_stalled,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
	OccurredAt     string   `json:"occurred_at"`
}

// SSEBroker fans out alert events to connected clients. It satisfies
// notify.Sink so the evaluator treats browsers like any other channel.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

// SendStaleAlert publishes a stale event.
func (b *SSEBroker) SendStaleAlert(_ context.Context, deviceID string, minutesStalled int) bool {
	return b.publish(AlertEvent{
		Type:           "stale",
		DeviceID:       deviceID,
		MinutesStalled: &minutesStalled,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// SendRecoveryAlert publishes a recovery event.
func (b *SSEBroker) SendRecoveryAlert(_ context.Context, deviceID string) bool {
	return b.publish(AlertEvent{
		Type:       "recovery",
		DeviceID:   deviceID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendHvacAlert publishes an HVAC excursion event.
func (b *SSEBroker) SendHvacAlert(_ context.Context, deviceID string, temperature, threshold float64) bool {
	return b.publish(AlertEvent{
		Type:        "hvac",
		DeviceID:    deviceID,
		Temperature: &temperature,
		Threshold:   &threshold,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

// SendHourlyReport publishes a report-ready event. Figures travel over
// the report download endpoints, not the stream.
func (b *SSEBroker) SendHourlyReport(_ context.Context, deviceID string, _ notify.ReportData) bool {
	return b.publish(AlertEvent{
		Type:       "report",
		DeviceID:   deviceID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *SSEBroker) publish(event AlertEvent) bool {
	if b == nil {
		return false
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	b.mu.Lock()
	clients := make([]chan []byte, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- payload:
		default:
		}
	}
	return true
}

// StreamHandler serves the SSE alert stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
