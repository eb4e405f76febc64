package application

import (
	"context"
	"errors"
	"log"
	"time"

	alerts "telemetry-hub/internal/alerts/domain"
	"telemetry-hub/internal/notify"
	"telemetry-hub/internal/observability/metrics"
)

// ReadingSource is the read-side slice of the telemetry store the
// evaluator needs.
type ReadingSource interface {
	LastReadingTime(ctx context.Context, deviceID string) (*time.Time, error)
	LatestTemperature(ctx context.Context, deviceID string) (*time.Time, *float64, error)
}

// Device is one monitored device with its resolved HVAC capability.
type Device struct {
	ID   string
	Hvac bool
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Settings holds evaluator thresholds. Zero values are rejected by the
// constructor except DeviceTimeout, which defaults to 10 seconds.
type Settings struct {
	InactivityMinutes int
	ConsecutiveMisses int
	AlertCooldown     time.Duration
	HvacTempThreshold float64
	HvacAlertCooldown time.Duration
	DeviceTimeout     time.Duration
}

// Evaluator runs the per-device stale-data state machine and the
// independent HVAC threshold check. It assumes at most one concurrent
// invocation per deployment; the per-device read-modify-write on alert
// state is not guarded against a second evaluator instance.
type Evaluator struct {
	readings ReadingSource
	states   alerts.StateRepository
	sink     notify.Sink
	clock    Clock
	logger   *log.Logger
	settings Settings
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*Evaluator)

// WithSink assigns a notification sink.
func WithSink(sink notify.Sink) EvaluatorOption {
	return func(e *Evaluator) {
		e.sink = sink
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(readings ReadingSource, states alerts.StateRepository, settings Settings, opts ...EvaluatorOption) (*Evaluator, error) {
	if readings == nil {
		return nil, errors.New("evaluator: nil reading source")
	}
	if states == nil {
		return nil, errors.New("evaluator: nil state repository")
	}
	if settings.InactivityMinutes <= 0 {
		return nil, errors.New("evaluator: inactivity minutes must be positive")
	}
	if settings.ConsecutiveMisses <= 0 {
		return nil, errors.New("evaluator: consecutive misses must be positive")
	}
	if settings.DeviceTimeout <= 0 {
		settings.DeviceTimeout = 10 * time.Second
	}
	evaluator := &Evaluator{
		readings: readings,
		states:   states,
		clock:    systemClock{},
		logger:   log.Default(),
		settings: settings,
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// RunCycle checks every device for staleness, then every HVAC-capable
// device for a temperature excursion. A failing device is logged and
// skipped; the cycle continues for the rest.
func (e *Evaluator) RunCycle(ctx context.Context, devices []Device) (alerts.CycleResult, error) {
	result := alerts.CycleResult{}
	if e == nil {
		return result, errors.New("evaluator: nil evaluator")
	}

	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.CheckedDevices = append(result.CheckedDevices, device.ID)
		alert, err := e.checkStaleWithTimeout(ctx, device.ID)
		if err != nil {
			e.logger.Printf("monitor: stale check failed for %s: %v", device.ID, err)
			continue
		}
		if alert != nil {
			result.StaleAlerts = append(result.StaleAlerts, *alert)
		}
	}

	for _, device := range devices {
		if !device.Hvac {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		alert, err := e.checkHvacWithTimeout(ctx, device.ID)
		if err != nil {
			e.logger.Printf("monitor: hvac check failed for %s: %v", device.ID, err)
			continue
		}
		if alert != nil {
			result.HvacAlerts = append(result.HvacAlerts, *alert)
		}
	}
	return result, nil
}

func (e *Evaluator) checkStaleWithTimeout(ctx context.Context, deviceID string) (*alerts.StaleAlert, error) {
	dctx, cancel := context.WithTimeout(ctx, e.settings.DeviceTimeout)
	defer cancel()
	return e.checkStale(dctx, deviceID)
}

func (e *Evaluator) checkHvacWithTimeout(ctx context.Context, deviceID string) (*alerts.HvacAlert, error) {
	dctx, cancel := context.WithTimeout(ctx, e.settings.DeviceTimeout)
	defer cancel()
	return e.checkHvac(dctx, deviceID)
}

func (e *Evaluator) checkStale(ctx context.Context, deviceID string) (*alerts.StaleAlert, error) {
	state, err := e.states.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	lastReading, err := e.readings.LastReadingTime(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()

	// A reading strictly newer than the stored high-water mark always
	// short-circuits the staleness check for this cycle.
	if lastReading != nil && (state.LastReadingAt == nil || lastReading.After(*state.LastReadingAt)) {
		patch := alerts.StatePatch{
			LastReadingAt:  lastReading,
			StaleMissCount: intPtr(0),
		}
		recovered := state.AlertActive
		if recovered {
			patch.AlertActive = boolPtr(false)
			patch.ClearLastAlert = true
		}
		if err := e.states.Merge(ctx, deviceID, patch); err != nil {
			return nil, err
		}
		if recovered {
			e.notifyRecovery(ctx, deviceID)
		}
		return nil, nil
	}

	reference := lastReading
	if reference == nil {
		reference = state.LastReadingAt
	}
	if reference == nil {
		// Nascent: never seen a reading and no stored state.
		return nil, nil
	}

	stalled := now.Sub(*reference)
	if stalled < time.Duration(e.settings.InactivityMinutes)*time.Minute {
		if state.StaleMissCount > 0 {
			if err := e.states.Merge(ctx, deviceID, alerts.StatePatch{StaleMissCount: intPtr(0)}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	misses := state.StaleMissCount + 1
	if err := e.states.Merge(ctx, deviceID, alerts.StatePatch{StaleMissCount: intPtr(misses)}); err != nil {
		return nil, err
	}
	if misses < e.settings.ConsecutiveMisses {
		return nil, nil
	}
	if state.LastAlertAt != nil && now.Sub(*state.LastAlertAt) < e.settings.AlertCooldown {
		return nil, nil
	}

	if err := e.states.Merge(ctx, deviceID, alerts.StatePatch{
		AlertActive: boolPtr(true),
		LastAlertAt: &now,
	}); err != nil {
		return nil, err
	}
	minutesStalled := int(stalled.Minutes())
	e.notifyStale(ctx, deviceID, minutesStalled)
	return &alerts.StaleAlert{DeviceID: deviceID, MinutesStalled: minutesStalled}, nil
}

func (e *Evaluator) checkHvac(ctx context.Context, deviceID string) (*alerts.HvacAlert, error) {
	_, temperature, err := e.readings.LatestTemperature(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if temperature == nil {
		return nil, nil
	}
	// Strict greater-than: exactly at threshold never alerts.
	if *temperature <= e.settings.HvacTempThreshold {
		return nil, nil
	}

	state, err := e.states.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now().UTC()
	if state.LastHvacAlertAt != nil && now.Sub(*state.LastHvacAlertAt) < e.settings.HvacAlertCooldown {
		return nil, nil
	}

	if err := e.states.Merge(ctx, deviceID, alerts.StatePatch{LastHvacAlertAt: &now}); err != nil {
		return nil, err
	}
	e.notifyHvac(ctx, deviceID, *temperature)
	return &alerts.HvacAlert{
		DeviceID:    deviceID,
		Temperature: *temperature,
		Threshold:   e.settings.HvacTempThreshold,
	}, nil
}

// State is committed before delivery is attempted. A failed delivery is
// logged and the alert still enters cooldown; the next cycle does not
// retry it.
func (e *Evaluator) notifyStale(ctx context.Context, deviceID string, minutesStalled int) {
	metrics.IncAlertEvent("stale")
	if e.sink == nil {
		return
	}
	if !e.sink.SendStaleAlert(ctx, deviceID, minutesStalled) {
		e.logger.Printf("monitor: stale alert delivery failed for %s", deviceID)
	}
}

func (e *Evaluator) notifyRecovery(ctx context.Context, deviceID string) {
	metrics.IncAlertEvent("recovery")
	if e.sink == nil {
		return
	}
	if !e.sink.SendRecoveryAlert(ctx, deviceID) {
		e.logger.Printf("monitor: recovery delivery failed for %s", deviceID)
	}
}

func (e *Evaluator) notifyHvac(ctx context.Context, deviceID string, temperature float64) {
	metrics.IncAlertEvent("hvac")
	if e.sink == nil {
		return
	}
	if !e.sink.SendHvacAlert(ctx, deviceID, temperature, e.settings.HvacTempThreshold) {
		e.logger.Printf("monitor: hvac alert delivery failed for %s", deviceID)
	}
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
