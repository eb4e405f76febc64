package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Sink delivers human-facing alerts and reports. Every method reports
// delivery success; callers log failures and continue, since a failed
// delivery is never a fault.
type Sink interface {
	SendStaleAlert(ctx context.Context, deviceID string, minutesStalled int) bool
	SendRecoveryAlert(ctx context.Context, deviceID string) bool
	SendHvacAlert(ctx context.Context, deviceID string, temperature, threshold float64) bool
	SendHourlyReport(ctx context.Context, deviceID string, report ReportData) bool
}

// ReportData carries the hourly figures a sink renders. Nil fields were
// absent for the whole hour and are omitted from the message.
type ReportData struct {
	HourStart      time.Time
	ReadingCount   int64
	AvgTemperature *float64
	MaxTemperature *float64
	MinTemperature *float64
	AvgHumidity    *float64
	AvgPressure    *float64
	AvgGas         *float64
	TotalStink     int64
	TotalSuccess   int64
	TotalRequests  int64
}

// Channel delivers rendered text to one destination.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// ChannelSink renders alert messages and pushes them through a Channel.
type ChannelSink struct {
	channel Channel
	logger  *log.Logger
}

// NewChannelSink constructs a sink over a text channel.
func NewChannelSink(channel Channel, logger *log.Logger) (*ChannelSink, error) {
	if channel == nil {
		return nil, fmt.Errorf("notify: nil channel")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ChannelSink{channel: channel, logger: logger}, nil
}

// SendStaleAlert posts a stalled-data alert.
func (s *ChannelSink) SendStaleAlert(ctx context.Context, deviceID string, minutesStalled int) bool {
	msg := fmt.Sprintf(
		":warning: Data stream stalled\n* %s: no new rows for %d min\nPossible causes: Wi-Fi drop, device loop issue, or power interruption",
		deviceID, minutesStalled,
	)
	return s.post(ctx, msg)
}

// SendRecoveryAlert posts a data-resumed notification.
func (s *ChannelSink) SendRecoveryAlert(ctx context.Context, deviceID string) bool {
	return s.post(ctx, fmt.Sprintf(":white_check_mark: Data resumed for %s", deviceID))
}

// SendHvacAlert posts a temperature excursion alert.
func (s *ChannelSink) SendHvacAlert(ctx context.Context, deviceID string, temperature, threshold float64) bool {
	msg := fmt.Sprintf(
		":thermometer: HVAC failure alert: Temperature %.2fC (threshold: %gC) on %s",
		temperature, threshold, deviceID,
	)
	return s.post(ctx, msg)
}

// SendHourlyReport posts an hourly summary.
func (s *ChannelSink) SendHourlyReport(ctx context.Context, deviceID string, report ReportData) bool {
	lines := []string{fmt.Sprintf(":sun_small_cloud: Hourly report for %s", deviceID)}
	if report.AvgTemperature != nil {
		lines = append(lines, fmt.Sprintf("* Temp: %.1fC (max: %s, min: %s)",
			*report.AvgTemperature,
			formatOptional(report.MaxTemperature),
			formatOptional(report.MinTemperature)))
	}
	if report.AvgHumidity != nil {
		lines = append(lines, fmt.Sprintf("* Humidity: %.1f%%", *report.AvgHumidity))
	}
	if report.AvgPressure != nil {
		lines = append(lines, fmt.Sprintf("* Pressure: %.1f hPa", *report.AvgPressure))
	}
	if report.AvgGas != nil {
		lines = append(lines, fmt.Sprintf("* Gas: %.1f kOhms", *report.AvgGas))
	}
	lines = append(lines, fmt.Sprintf("* Readings: %d", report.ReadingCount))
	return s.post(ctx, strings.Join(lines, "\n"))
}

func (s *ChannelSink) post(ctx context.Context, content string) bool {
	if s == nil || s.channel == nil {
		return false
	}
	if err := s.channel.Send(ctx, content); err != nil {
		s.logger.Printf("notify: delivery failed: %v", err)
		return false
	}
	return true
}

func formatOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}
