package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"telemetry-hub/internal/observability/metrics"
	telemetry "telemetry-hub/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// ErrInvalidPayload marks a rejected submission; callers answer 400
// instead of 500.
var ErrInvalidPayload = errors.New("ingest: invalid payload")

// Result is the outcome of one ingest call. Duplicate submissions are
// a success from the device's point of view.
type Result struct {
	Reading   *telemetry.Reading
	Duplicate bool
}

// IngestService validates payloads and stores readings. It holds no
// locks and performs no read-then-write check: duplicate handling is
// entirely the storage layer's conflict-as-no-op insert, so concurrent
// replays of the same (device_id, request_id) pair are race-free.
type IngestService struct {
	repo   telemetry.ReadingRepository
	clock  Clock
	logger *log.Logger
}

// IngestOption customizes the service.
type IngestOption func(*IngestService)

// WithClock assigns a clock.
func WithClock(clock Clock) IngestOption {
	return func(s *IngestService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestService constructs an ingest service.
func NewIngestService(repo telemetry.ReadingRepository, opts ...IngestOption) (*IngestService, error) {
	if repo == nil {
		return nil, errors.New("ingest: nil repository")
	}
	service := &IngestService{
		repo:   repo,
		clock:  systemClock{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest validates and stores one payload. The raw body is kept with
// the row for diagnosis.
func (s *IngestService) Ingest(ctx context.Context, payload telemetry.IngestPayload, raw []byte) (*Result, error) {
	if s == nil {
		return nil, errors.New("ingest: nil service")
	}
	started := s.clock.Now()

	reading, err := payload.ToReading(s.clock.Now().UTC(), raw)
	if err != nil {
		metrics.IncIngestError("invalid_payload")
		metrics.ObserveIngest(metrics.ResultError, s.clock.Now().Sub(started))
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	inserted, err := s.repo.InsertReading(ctx, reading)
	if err != nil {
		metrics.IncIngestError("storage")
		metrics.ObserveIngest(metrics.ResultError, s.clock.Now().Sub(started))
		return nil, err
	}
	if !inserted {
		metrics.IncIngestDuplicate()
	}
	metrics.ObserveIngest(metrics.ResultSuccess, s.clock.Now().Sub(started))
	return &Result{Reading: reading, Duplicate: !inserted}, nil
}

// ActiveDevices lists devices with readings since midnight UTC.
func (s *IngestService) ActiveDevices(ctx context.Context) ([]string, time.Time, error) {
	if s == nil {
		return nil, time.Time{}, errors.New("ingest: nil service")
	}
	midnight := s.clock.Now().UTC().Truncate(24 * time.Hour)
	devices, err := s.repo.DevicesWithReadingsSince(ctx, midnight)
	return devices, midnight, err
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
