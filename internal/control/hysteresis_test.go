package control

import (
	"testing"
	"time"
)

func TestHysteresis(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	type step struct {
		at   time.Duration
		high bool
		want Verdict
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "high for 4.9s is undecided",
			steps: []step{
				{0, true, Undecided},
				{4900 * time.Millisecond, true, Undecided},
			},
		},
		{
			name: "high for exactly 5s is sustained",
			steps: []step{
				{0, true, Undecided},
				{5 * time.Second, true, SustainedHigh},
				{10 * time.Second, true, SustainedHigh},
			},
		},
		{
			name: "normal streak symmetric",
			steps: []step{
				{0, false, Undecided},
				{4900 * time.Millisecond, false, Undecided},
				{5 * time.Second, false, SustainedNormal},
			},
		},
		{
			name: "oscillation never decides",
			steps: []step{
				{0, true, Undecided},
				{2 * time.Second, false, Undecided},
				{4 * time.Second, true, Undecided},
				{6 * time.Second, false, Undecided},
				{8 * time.Second, true, Undecided},
				{10 * time.Second, false, Undecided},
			},
		},
		{
			name: "flip restarts the clock",
			steps: []step{
				{0, true, Undecided},
				{5 * time.Second, true, SustainedHigh},
				{6 * time.Second, false, Undecided},
				{10 * time.Second, false, Undecided},
				{11 * time.Second, false, SustainedNormal},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHysteresis(5 * time.Second)
			for i, s := range tt.steps {
				if got := h.Observe(s.high, t0.Add(s.at)); got != s.want {
					t.Fatalf("step %d (t=%s high=%v): got %v, want %v", i, s.at, s.high, got, s.want)
				}
			}
		})
	}
}

func TestHysteresisClearsOppositeTimer(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHysteresis(5 * time.Second)

	h.Observe(true, t0)
	if h.HighSince().IsZero() || !h.NormalSince().IsZero() {
		t.Fatalf("after high: highSince=%v normalSince=%v", h.HighSince(), h.NormalSince())
	}

	h.Observe(false, t0.Add(time.Second))
	if !h.HighSince().IsZero() {
		t.Error("highSince should be cleared once CO2 is normal")
	}
	if !h.NormalSince().Equal(t0.Add(time.Second)) {
		t.Errorf("normalSince: got %v", h.NormalSince())
	}
}
