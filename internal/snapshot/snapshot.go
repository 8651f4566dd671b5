// Package snapshot holds the latest reading of every monitored quantity.
//
// Ingestion handlers write single fields concurrently; the decision loop reads
// the whole record once per tick through Snapshot, which copies every field
// under one read lock. A tick therefore always evaluates a consistent
// point-in-time view, even while readings keep arriving.
package snapshot

import (
	"sync"
	"time"
)

// Color is the indicator LED state.
type Color string

const (
	ColorOff   Color = "OFF"
	ColorRed   Color = "RED"
	ColorBlue  Color = "BLUE"
	ColorGreen Color = "GREEN"
)

// Valid reports whether c is one of the four LED states.
func (c Color) Valid() bool {
	switch c {
	case ColorOff, ColorRed, ColorBlue, ColorGreen:
		return true
	}
	return false
}

// Snapshot is a point-in-time copy of the latest readings.
// Nil pointers mean the quantity has never been reported.
type Snapshot struct {
	Temperature     *float64   `json:"temperature"`
	Humidity        *float64   `json:"humidity"`
	Pressure        *float64   `json:"pressure"`
	CO2             *float64   `json:"co2_level"`
	MotionDetected  bool       `json:"motion_detected"`
	MotionTimestamp *time.Time `json:"motion_timestamp"`
	NoiseLevel      *float64   `json:"noise_level"`
	NoiseTimestamp  *time.Time `json:"noise_timestamp"`
	LEDColor        Color      `json:"led_state"`
}

// Store is the shared, mutable latest-value record.
type Store struct {
	mu   sync.RWMutex
	data Snapshot
}

// NewStore creates an empty store with the LED off.
func NewStore() *Store {
	return &Store{data: Snapshot{LEDColor: ColorOff}}
}

// Snapshot returns a deep copy of the current record.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.data
	out.Temperature = cloneFloat(s.data.Temperature)
	out.Humidity = cloneFloat(s.data.Humidity)
	out.Pressure = cloneFloat(s.data.Pressure)
	out.CO2 = cloneFloat(s.data.CO2)
	out.NoiseLevel = cloneFloat(s.data.NoiseLevel)
	out.MotionTimestamp = cloneTime(s.data.MotionTimestamp)
	out.NoiseTimestamp = cloneTime(s.data.NoiseTimestamp)
	return out
}

// SetTemperature records a temperature reading in °C.
func (s *Store) SetTemperature(v float64) {
	s.mu.Lock()
	s.data.Temperature = &v
	s.mu.Unlock()
}

// SetHumidity records a relative humidity reading in %.
func (s *Store) SetHumidity(v float64) {
	s.mu.Lock()
	s.data.Humidity = &v
	s.mu.Unlock()
}

// SetPressure records a barometric reading in hPa.
func (s *Store) SetPressure(v float64) {
	s.mu.Lock()
	s.data.Pressure = &v
	s.mu.Unlock()
}

// SetCO2 records a CO2 concentration in ppm.
func (s *Store) SetCO2(v float64) {
	s.mu.Lock()
	s.data.CO2 = &v
	s.mu.Unlock()
}

// SetMotion records a motion report. The timestamp only moves on positive
// reports so that the light timeout counts from the last detected motion.
func (s *Store) SetMotion(detected bool, at time.Time) {
	s.mu.Lock()
	s.data.MotionDetected = detected
	if detected {
		s.data.MotionTimestamp = &at
	}
	s.mu.Unlock()
}

// SetNoise records a sound level in dB.
func (s *Store) SetNoise(level float64, at time.Time) {
	s.mu.Lock()
	s.data.NoiseLevel = &level
	s.data.NoiseTimestamp = &at
	s.mu.Unlock()
}

// LEDColor returns the color the LED was last successfully set to.
func (s *Store) LEDColor() Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.LEDColor
}

// SetLEDColor records the color the LED controller confirmed.
func (s *Store) SetLEDColor(c Color) {
	s.mu.Lock()
	s.data.LEDColor = c
	s.mu.Unlock()
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
