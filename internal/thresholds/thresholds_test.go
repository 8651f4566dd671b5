package thresholds

import (
	"reflect"
	"testing"
	"time"
)

func defaults() Values {
	return Values{TempHigh: 28, TempLow: 18, HumidityHigh: 70, CO2High: 1000, NoiseHigh: 70, MotionTimeout: 300}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name        string
		updates     map[string]float64
		wantApplied []string
		check       func(Values) bool
	}{
		{
			name:        "single field",
			updates:     map[string]float64{"temp_high": 26},
			wantApplied: []string{"temp_high"},
			check:       func(v Values) bool { return v.TempHigh == 26 && v.TempLow == 18 },
		},
		{
			name:        "unknown keys ignored",
			updates:     map[string]float64{"bogus": 1, "noise_high": 65},
			wantApplied: []string{"noise_high"},
			check:       func(v Values) bool { return v.NoiseHigh == 65 },
		},
		{
			name:        "no cross-field validation",
			updates:     map[string]float64{"temp_low": 40, "temp_high": 10},
			wantApplied: []string{"temp_high", "temp_low"},
			check:       func(v Values) bool { return v.TempLow == 40 && v.TempHigh == 10 },
		},
		{
			name:        "empty",
			updates:     map[string]float64{},
			wantApplied: nil,
			check:       func(v Values) bool { return v == defaults() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(defaults())
			applied := s.Update(tt.updates)
			if !reflect.DeepEqual(applied, tt.wantApplied) {
				t.Errorf("applied: got %v, want %v", applied, tt.wantApplied)
			}
			if !tt.check(s.Get()) {
				t.Errorf("unexpected values: %+v", s.Get())
			}
		})
	}
}

func TestMotionTimeoutDuration(t *testing.T) {
	v := Values{MotionTimeout: 1.5}
	if got := v.MotionTimeoutDuration(); got != 1500*time.Millisecond {
		t.Errorf("got %s, want 1.5s", got)
	}
}
