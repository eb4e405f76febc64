package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// millisEpochCutoff separates second from millisecond epoch values.
const millisEpochCutoff = 1e12

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDeviceTimestamp normalizes a device-reported timestamp to UTC.
// Devices send epoch numbers (seconds or milliseconds), digit strings, or
// ISO-8601 variants with and without zone info. Unparseable values yield
// nil; a bad timestamp never rejects a reading.
func ParseDeviceTimestamp(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return epochToTime(v)
	case int64:
		return epochToTime(float64(v))
	case int:
		return epochToTime(float64(v))
	case string:
		return parseTimestampString(v)
	default:
		return nil
	}
}

func epochToTime(v float64) *time.Time {
	if !isFinite(v) {
		return nil
	}
	if v > millisEpochCutoff {
		v = v / 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}

func parseTimestampString(s string) *time.Time {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return nil
	}
	if isDigits(cleaned) {
		sec, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return nil
		}
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	if strings.HasSuffix(cleaned, "Z") {
		cleaned = cleaned[:len(cleaned)-1] + "+00:00"
	}
	for _, layout := range isoLayouts {
		parsed, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		// Layouts without zone info parse in UTC already; zone-aware
		// results are converted.
		t := parsed.UTC()
		return &t
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
