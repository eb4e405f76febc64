package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	reports "telemetry-hub/internal/reports/domain"
)

// ReportStore is an in-memory report repository for demo/testing. Upsert
// follows the same replace-on-rerun semantics as the Postgres
// implementation.
type ReportStore struct {
	mu   sync.RWMutex
	rows map[string]reports.HourlyReport
}

// NewReportStore constructs a store.
func NewReportStore() *ReportStore {
	return &ReportStore{rows: make(map[string]reports.HourlyReport)}
}

// Upsert writes a report keyed on (device_id, hour_start).
func (s *ReportStore) Upsert(ctx context.Context, report *reports.HourlyReport) error {
	_ = ctx
	if report == nil {
		return errors.New("memory report store: nil report")
	}
	if report.DeviceID == "" {
		return errors.New("memory report store: empty device id")
	}
	stored := *report
	stored.HourStart = stored.HourStart.UTC()
	stored.CreatedAt = time.Now().UTC()
	s.mu.Lock()
	s.rows[stored.DeviceID+"|"+stored.HourStart.Format(time.RFC3339)] = stored
	s.mu.Unlock()
	return nil
}

// ListRange returns reports with hour_start in [from, to), oldest first.
func (s *ReportStore) ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]reports.HourlyReport, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []reports.HourlyReport
	for _, row := range s.rows {
		if deviceID != "" && row.DeviceID != deviceID {
			continue
		}
		if row.HourStart.Before(from.UTC()) || !row.HourStart.Before(to.UTC()) {
			continue
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].HourStart.Equal(result[j].HourStart) {
			return result[i].DeviceID < result[j].DeviceID
		}
		return result[i].HourStart.Before(result[j].HourStart)
	})
	return result, nil
}

// Latest returns the newest report for a device, or nil when none exists.
func (s *ReportStore) Latest(ctx context.Context, deviceID string) (*reports.HourlyReport, error) {
	_ = ctx
	if deviceID == "" {
		return nil, errors.New("memory report store: empty device id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *reports.HourlyReport
	for _, row := range s.rows {
		if row.DeviceID != deviceID {
			continue
		}
		if latest == nil || row.HourStart.After(latest.HourStart) {
			found := row
			latest = &found
		}
	}
	return latest, nil
}
