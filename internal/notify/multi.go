package notify

import "context"

// MultiSink fans out every notification to multiple sinks. Delivery
// succeeds only when every sink succeeds; a nil sink is skipped.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a MultiSink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// SendStaleAlert forwards to all sinks.
func (m *MultiSink) SendStaleAlert(ctx context.Context, deviceID string, minutesStalled int) bool {
	return m.each(func(s Sink) bool {
		return s.SendStaleAlert(ctx, deviceID, minutesStalled)
	})
}

// SendRecoveryAlert forwards to all sinks.
func (m *MultiSink) SendRecoveryAlert(ctx context.Context, deviceID string) bool {
	return m.each(func(s Sink) bool {
		return s.SendRecoveryAlert(ctx, deviceID)
	})
}

// SendHvacAlert forwards to all sinks.
func (m *MultiSink) SendHvacAlert(ctx context.Context, deviceID string, temperature, threshold float64) bool {
	return m.each(func(s Sink) bool {
		return s.SendHvacAlert(ctx, deviceID, temperature, threshold)
	})
}

// SendHourlyReport forwards to all sinks.
func (m *MultiSink) SendHourlyReport(ctx context.Context, deviceID string, report ReportData) bool {
	return m.each(func(s Sink) bool {
		return s.SendHourlyReport(ctx, deviceID, report)
	})
}

func (m *MultiSink) each(send func(Sink) bool) bool {
	if m == nil {
		return false
	}
	ok := true
	for _, sink := range m.sinks {
		if sink == nil {
			continue
		}
		if !send(sink) {
			ok = false
		}
	}
	return ok
}
