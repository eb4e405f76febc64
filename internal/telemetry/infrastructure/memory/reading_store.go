package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	telemetry "telemetry-hub/internal/telemetry/domain"
)

// ReadingStore is an in-memory reading repository for demo/testing.
// It mirrors the Postgres dedup and aggregation semantics.
type ReadingStore struct {
	mu       sync.RWMutex
	readings []telemetry.Reading
	dedup    map[string]struct{}
}

// NewReadingStore constructs a store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{dedup: make(map[string]struct{})}
}

// InsertReading stores a reading; duplicates on (device_id, request_id)
// are a no-op reporting inserted=false.
func (s *ReadingStore) InsertReading(ctx context.Context, reading *telemetry.Reading) (bool, error) {
	_ = ctx
	if reading == nil {
		return false, errors.New("memory reading store: nil reading")
	}
	if reading.DeviceID == "" {
		return false, errors.New("memory reading store: empty device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reading.RequestID != nil {
		key := reading.DeviceID + "|" + *reading.RequestID
		if _, exists := s.dedup[key]; exists {
			return false, nil
		}
		s.dedup[key] = struct{}{}
	}
	stored := *reading
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = time.Now().UTC()
	}
	s.readings = append(s.readings, stored)
	return true, nil
}

// LastReadingTime returns the newest ingested_at for a device.
func (s *ReadingStore) LastReadingTime(ctx context.Context, deviceID string) (*time.Time, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for i := range s.readings {
		r := &s.readings[i]
		if r.DeviceID != deviceID {
			continue
		}
		if last == nil || r.IngestedAt.After(*last) {
			t := r.IngestedAt
			last = &t
		}
	}
	return last, nil
}

// LatestTemperature returns the newest non-null temperature for a device.
func (s *ReadingStore) LatestTemperature(ctx context.Context, deviceID string) (*time.Time, *float64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var at *time.Time
	var temp *float64
	for i := range s.readings {
		r := &s.readings[i]
		if r.DeviceID != deviceID || r.Temperature == nil {
			continue
		}
		if at == nil || r.IngestedAt.After(*at) {
			t := r.IngestedAt
			v := *r.Temperature
			at = &t
			temp = &v
		}
	}
	return at, temp, nil
}

// AggregateHour groups readings ingested in [hourStart, hourEnd) by device.
func (s *ReadingStore) AggregateHour(ctx context.Context, hourStart, hourEnd time.Time) ([]telemetry.HourlyAggregate, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDevice := make(map[string]*aggregator)
	for i := range s.readings {
		r := &s.readings[i]
		if r.IngestedAt.Before(hourStart) || !r.IngestedAt.Before(hourEnd) {
			continue
		}
		agg := byDevice[r.DeviceID]
		if agg == nil {
			agg = &aggregator{}
			byDevice[r.DeviceID] = agg
		}
		agg.add(r)
	}

	devices := make([]string, 0, len(byDevice))
	for id := range byDevice {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	result := make([]telemetry.HourlyAggregate, 0, len(devices))
	for _, id := range devices {
		result = append(result, byDevice[id].finish(id))
	}
	return result, nil
}

// DevicesWithReadingsSince lists device ids with readings since the given time.
func (s *ReadingStore) DevicesWithReadingsSince(ctx context.Context, since time.Time) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for i := range s.readings {
		r := &s.readings[i]
		if r.IngestedAt.Before(since) {
			continue
		}
		seen[r.DeviceID] = struct{}{}
	}
	devices := make([]string, 0, len(seen))
	for id := range seen {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices, nil
}

// aggregator accumulates null-safe statistics: nulls are excluded from
// averages, never counted as zero.
type aggregator struct {
	count int64

	tempSum   float64
	tempCount int64
	tempMin   float64
	tempMax   float64

	humiditySum   float64
	humidityCount int64
	pressureSum   float64
	pressureCount int64
	gasSum        float64
	gasCount      int64

	stink    int64
	success  int64
	requests int64
}

func (a *aggregator) add(r *telemetry.Reading) {
	a.count++
	if r.Temperature != nil {
		v := *r.Temperature
		if a.tempCount == 0 || v < a.tempMin {
			a.tempMin = v
		}
		if a.tempCount == 0 || v > a.tempMax {
			a.tempMax = v
		}
		a.tempSum += v
		a.tempCount++
	}
	if r.Humidity != nil {
		a.humiditySum += *r.Humidity
		a.humidityCount++
	}
	if r.Pressure != nil {
		a.pressureSum += *r.Pressure
		a.pressureCount++
	}
	if r.Gas != nil {
		a.gasSum += *r.Gas
		a.gasCount++
	}
	a.stink += r.StinkCount
	a.success += r.SuccessCount
	a.requests += r.TotalRequests
}

func (a *aggregator) finish(deviceID string) telemetry.HourlyAggregate {
	agg := telemetry.HourlyAggregate{
		DeviceID:      deviceID,
		ReadingCount:  a.count,
		TotalStink:    a.stink,
		TotalSuccess:  a.success,
		TotalRequests: a.requests,
	}
	if a.tempCount > 0 {
		avg := a.tempSum / float64(a.tempCount)
		minT := a.tempMin
		maxT := a.tempMax
		agg.AvgTemperature = &avg
		agg.MinTemperature = &minT
		agg.MaxTemperature = &maxT
	}
	if a.humidityCount > 0 {
		avg := a.humiditySum / float64(a.humidityCount)
		agg.AvgHumidity = &avg
	}
	if a.pressureCount > 0 {
		avg := a.pressureSum / float64(a.pressureCount)
		agg.AvgPressure = &avg
	}
	if a.gasCount > 0 {
		avg := a.gasSum / float64(a.gasCount)
		agg.AvgGas = &avg
	}
	return agg
}
