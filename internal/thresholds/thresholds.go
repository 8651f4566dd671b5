// Package thresholds holds the runtime-mutable control limits.
package thresholds

import (
	"sort"
	"sync"
	"time"
)

// Names of the recognized thresholds, as used on the wire.
const (
	TempHigh      = "temp_high"
	TempLow       = "temp_low"
	HumidityHigh  = "humidity_high"
	CO2High       = "co2_high"
	NoiseHigh     = "noise_high"
	MotionTimeout = "motion_timeout"
)

// Values is a copy of every threshold. MotionTimeout is in seconds.
type Values struct {
	TempHigh      float64 `json:"temp_high"`
	TempLow       float64 `json:"temp_low"`
	HumidityHigh  float64 `json:"humidity_high"`
	CO2High       float64 `json:"co2_high"`
	NoiseHigh     float64 `json:"noise_high"`
	MotionTimeout float64 `json:"motion_timeout"`
}

// MotionTimeoutDuration returns the light-off timeout as a duration.
func (v Values) MotionTimeoutDuration() time.Duration {
	return time.Duration(v.MotionTimeout * float64(time.Second))
}

// Store guards the live thresholds.
// Values are not cross-validated: temp_low above temp_high is accepted as-is.
type Store struct {
	mu sync.RWMutex
	v  Values
}

// New creates a store holding the given initial values.
func New(initial Values) *Store {
	return &Store{v: initial}
}

// Get returns a copy of the current thresholds.
func (s *Store) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update applies every recognized name in updates and ignores the rest.
// It returns the sorted names that were applied.
func (s *Store) Update(updates map[string]float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied []string
	for name, value := range updates {
		field := s.field(name)
		if field == nil {
			continue
		}
		*field = value
		applied = append(applied, name)
	}
	sort.Strings(applied)
	return applied
}

func (s *Store) field(name string) *float64 {
	switch name {
	case TempHigh:
		return &s.v.TempHigh
	case TempLow:
		return &s.v.TempLow
	case HumidityHigh:
		return &s.v.HumidityHigh
	case CO2High:
		return &s.v.CO2High
	case NoiseHigh:
		return &s.v.NoiseHigh
	case MotionTimeout:
		return &s.v.MotionTimeout
	}
	return nil
}
