package application

import (
	"context"
	"errors"
	"log"
	"time"

	"telemetry-hub/internal/notify"
	"telemetry-hub/internal/observability/metrics"
	reports "telemetry-hub/internal/reports/domain"
	telemetry "telemetry-hub/internal/telemetry/domain"
)

// AggregateSource is the read-side slice of the telemetry store the
// generator needs.
type AggregateSource interface {
	AggregateHour(ctx context.Context, hourStart, hourEnd time.Time) ([]telemetry.HourlyAggregate, error)
}

// ReportSink receives a finished rollup. Delivery failures are logged
// per sink and never abort persistence or other sinks.
type ReportSink interface {
	SendHourlyReport(ctx context.Context, deviceID string, report notify.ReportData) bool
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Generator computes and distributes hourly rollups. Re-running any
// window is safe: the aggregate is recomputed from the immutable
// readings and upserted over the previous row.
type Generator struct {
	readings AggregateSource
	reports  reports.ReportRepository
	sinks    []ReportSink
	clock    Clock
	logger   *log.Logger
}

// GeneratorOption customizes the generator.
type GeneratorOption func(*Generator)

// WithSinks assigns distribution sinks.
func WithSinks(sinks ...ReportSink) GeneratorOption {
	return func(g *Generator) {
		g.sinks = sinks
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) GeneratorOption {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator constructs a generator.
func NewGenerator(readings AggregateSource, reportRepo reports.ReportRepository, opts ...GeneratorOption) (*Generator, error) {
	if readings == nil {
		return nil, errors.New("reports: nil reading source")
	}
	if reportRepo == nil {
		return nil, errors.New("reports: nil report repository")
	}
	generator := &Generator{
		readings: readings,
		reports:  reportRepo,
		clock:    systemClock{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(generator)
	}
	return generator, nil
}

// GenerateHourly aggregates the previous full hour relative to now and
// distributes the result. The scheduler invokes this just after the
// top of the hour.
func (g *Generator) GenerateHourly(ctx context.Context) ([]reports.HourlyReport, error) {
	if g == nil {
		return nil, errors.New("reports: nil generator")
	}
	hourStart := g.clock.Now().UTC().Truncate(time.Hour).Add(-time.Hour)
	return g.AggregateWindow(ctx, hourStart)
}

// AggregateWindow recomputes the rollup for [hourStart, hourStart+1h)
// and distributes every per-device row. Devices without readings in the
// window produce no row.
func (g *Generator) AggregateWindow(ctx context.Context, hourStart time.Time) ([]reports.HourlyReport, error) {
	if g == nil {
		return nil, errors.New("reports: nil generator")
	}
	started := g.clock.Now()
	hourStart = hourStart.UTC().Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	aggregates, err := g.readings.AggregateHour(ctx, hourStart, hourEnd)
	if err != nil {
		metrics.ObserveReportAggregate(metrics.ResultError, g.clock.Now().Sub(started))
		return nil, err
	}

	result := make([]reports.HourlyReport, 0, len(aggregates))
	for _, aggregate := range aggregates {
		report := reports.HourlyReport{
			DeviceID:       aggregate.DeviceID,
			HourStart:      hourStart,
			ReadingCount:   aggregate.ReadingCount,
			AvgTemperature: aggregate.AvgTemperature,
			MaxTemperature: aggregate.MaxTemperature,
			MinTemperature: aggregate.MinTemperature,
			AvgHumidity:    aggregate.AvgHumidity,
			AvgPressure:    aggregate.AvgPressure,
			AvgGas:         aggregate.AvgGas,
			TotalStink:     aggregate.TotalStink,
			TotalSuccess:   aggregate.TotalSuccess,
			TotalRequests:  aggregate.TotalRequests,
		}
		if err := g.Distribute(ctx, &report); err != nil {
			metrics.ObserveReportAggregate(metrics.ResultError, g.clock.Now().Sub(started))
			return result, err
		}
		result = append(result, report)
	}
	metrics.ObserveReportAggregate(metrics.ResultSuccess, g.clock.Now().Sub(started))
	return result, nil
}

// Distribute persists a report, then hands it to every sink. Persistence
// failure is an error; sink failures are logged and swallowed.
func (g *Generator) Distribute(ctx context.Context, report *reports.HourlyReport) error {
	if g == nil {
		return errors.New("reports: nil generator")
	}
	if report == nil {
		return errors.New("reports: nil report")
	}
	if err := g.reports.Upsert(ctx, report); err != nil {
		return err
	}

	data := notify.ReportData{
		HourStart:      report.HourStart,
		ReadingCount:   report.ReadingCount,
		AvgTemperature: report.AvgTemperature,
		MaxTemperature: report.MaxTemperature,
		MinTemperature: report.MinTemperature,
		AvgHumidity:    report.AvgHumidity,
		AvgPressure:    report.AvgPressure,
		AvgGas:         report.AvgGas,
		TotalStink:     report.TotalStink,
		TotalSuccess:   report.TotalSuccess,
		TotalRequests:  report.TotalRequests,
	}
	for _, sink := range g.sinks {
		if sink == nil {
			continue
		}
		if !sink.SendHourlyReport(ctx, report.DeviceID, data) {
			g.logger.Printf("reports: delivery failed for %s hour %s", report.DeviceID, report.HourStart.Format(time.RFC3339))
		}
	}
	return nil
}

// LatestSummary returns the most recent stored rollup for a device, or
// nil when the device has none.
func (g *Generator) LatestSummary(ctx context.Context, deviceID string) (*reports.HourlyReport, error) {
	if g == nil {
		return nil, errors.New("reports: nil generator")
	}
	if deviceID == "" {
		return nil, errors.New("reports: empty device id")
	}
	return g.reports.Latest(ctx, deviceID)
}

// ListRange returns stored rollups with hour_start in [from, to).
func (g *Generator) ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]reports.HourlyReport, error) {
	if g == nil {
		return nil, errors.New("reports: nil generator")
	}
	return g.reports.ListRange(ctx, deviceID, from, to)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
