package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation faults reject the reading; anything softer degrades to null.
var (
	ErrMissingDeviceID = errors.New("telemetry: device_id required")
	ErrDeviceIDTooLong = errors.New("telemetry: device_id too long")
)

const maxIdentifierLength = 100

// IngestPayload is the wire shape devices post. Sensor fields arrive as
// numbers or strings depending on firmware revision, so they are decoded
// loosely and coerced here.
type IngestPayload struct {
	DeviceID    string  `json:"device_id"`
	DeviceTS    any     `json:"device_ts"`
	RequestID   *string `json:"request_id"`
	Firmware    *string `json:"firmware"`
	SensorError *string `json:"sensor_error"`

	Temperature any `json:"temperature"`
	Humidity    any `json:"humidity"`
	Pressure    any `json:"pressure"`
	Gas         any `json:"gas"`
	Voltage     any `json:"voltage"`
	RawADC      any `json:"raw_adc"`

	StinkCount    any `json:"stink_count"`
	RedirectCount any `json:"redirect_count"`
	SuccessCount  any `json:"success_count"`
	TotalRequests any `json:"total_requests"`
	UptimeCycles  any `json:"uptime_cycles"`
	ResetCount    any `json:"reset_count"`
}

// ToReading validates and coerces the payload into a Reading. Malformed
// sensor values become null; malformed counters are a validation fault.
func (p *IngestPayload) ToReading(now time.Time, raw []byte) (*Reading, error) {
	if p == nil {
		return nil, errors.New("telemetry: nil payload")
	}
	deviceID := strings.TrimSpace(p.DeviceID)
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if len(deviceID) > maxIdentifierLength {
		return nil, ErrDeviceIDTooLong
	}
	if p.RequestID != nil && len(*p.RequestID) > maxIdentifierLength {
		return nil, errors.New("telemetry: request_id too long")
	}

	reading := &Reading{
		DeviceID:    deviceID,
		DeviceTS:    ParseDeviceTimestamp(p.DeviceTS),
		RequestID:   p.RequestID,
		Firmware:    p.Firmware,
		SensorError: p.SensorError,
		Temperature: coerceNumeric(p.Temperature),
		Humidity:    coerceNumeric(p.Humidity),
		Pressure:    coerceNumeric(p.Pressure),
		Gas:         coerceNumeric(p.Gas),
		Voltage:     coerceNumeric(p.Voltage),
		RawPayload:  raw,
		IngestedAt:  now.UTC(),
	}

	rawADC, err := coerceOptionalInt("raw_adc", p.RawADC)
	if err != nil {
		return nil, err
	}
	reading.RawADC = rawADC

	counters := []struct {
		name  string
		value any
		dst   *int64
	}{
		{"stink_count", p.StinkCount, &reading.StinkCount},
		{"redirect_count", p.RedirectCount, &reading.RedirectCount},
		{"success_count", p.SuccessCount, &reading.SuccessCount},
		{"total_requests", p.TotalRequests, &reading.TotalRequests},
		{"uptime_cycles", p.UptimeCycles, &reading.UptimeCycles},
		{"reset_count", p.ResetCount, &reading.ResetCount},
	}
	for _, counter := range counters {
		parsed, err := coerceCounter(counter.name, counter.value)
		if err != nil {
			return nil, err
		}
		*counter.dst = parsed
	}
	return reading, nil
}

// IsPicoClass reports whether a device id names a pico-class device.
func IsPicoClass(deviceID string) bool {
	return strings.Contains(strings.ToLower(deviceID), "pico")
}

// coerceNumeric converts a loosely typed sensor value to a float or nil.
// Non-finite values are normalized to nil rather than rejected.
func coerceNumeric(value any) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		if !isFinite(v) {
			return nil
		}
		return &v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || !isFinite(parsed) {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// coerceCounter converts a counter value to a non-negative integer.
// Absent values default to zero; malformed values are a fault.
func coerceCounter(name string, value any) (int64, error) {
	if value == nil {
		return 0, nil
	}
	parsed, err := coerceInt(name, value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("telemetry: %s must be non-negative", name)
	}
	return parsed, nil
}

func coerceOptionalInt(name string, value any) (*int64, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := coerceInt(name, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func coerceInt(name string, value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		if !isFinite(v) || v != float64(int64(v)) {
			return 0, fmt.Errorf("telemetry: %s must be an integer", name)
		}
		return int64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("telemetry: %s must be an integer", name)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("telemetry: %s must be an integer", name)
	}
}
