package memory

import (
	"context"
	"errors"
	"sync"

	alerts "telemetry-hub/internal/alerts/domain"
)

// StateStore is an in-memory alert state repository for demo/testing.
// Merge follows the same partial-update semantics as the Postgres
// implementation.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]alerts.AlertState
}

// NewStateStore constructs a store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]alerts.AlertState)}
}

// Get returns the stored state or the zero-value state when absent.
func (s *StateStore) Get(ctx context.Context, deviceID string) (alerts.AlertState, error) {
	_ = ctx
	if deviceID == "" {
		return alerts.AlertState{}, errors.New("memory state store: empty device id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[deviceID]; ok {
		return state, nil
	}
	return alerts.AlertState{DeviceID: deviceID}, nil
}

// Merge applies a partial update; nil fields keep their stored value.
func (s *StateStore) Merge(ctx context.Context, deviceID string, patch alerts.StatePatch) error {
	_ = ctx
	if deviceID == "" {
		return errors.New("memory state store: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[deviceID]
	if !ok {
		state = alerts.AlertState{DeviceID: deviceID}
	}
	if patch.LastReadingAt != nil {
		t := patch.LastReadingAt.UTC()
		state.LastReadingAt = &t
	}
	if patch.ClearLastAlert {
		state.LastAlertAt = nil
	} else if patch.LastAlertAt != nil {
		t := patch.LastAlertAt.UTC()
		state.LastAlertAt = &t
	}
	if patch.LastHvacAlertAt != nil {
		t := patch.LastHvacAlertAt.UTC()
		state.LastHvacAlertAt = &t
	}
	if patch.AlertActive != nil {
		state.AlertActive = *patch.AlertActive
	}
	if patch.StaleMissCount != nil {
		state.StaleMissCount = *patch.StaleMissCount
	}
	s.states[deviceID] = state
	return nil
}
