package control

import "time"

// Verdict is the outcome of one hysteresis observation
type Verdict int

const (
	Undecided Verdict = iota // the condition has not held long enough
	SustainedHigh
	SustainedNormal
)

// Hysteresis tracks how long a reading has continuously stayed above, or
// at or below, its limit. A flip in either direction restarts the clock.
type Hysteresis struct {
	debounce    time.Duration
	highSince   time.Time
	normalSince time.Time
}

// NewHysteresis creates a tracker that needs debounce of continuous state
// before reaching a verdict.
func NewHysteresis(debounce time.Duration) *Hysteresis {
	return &Hysteresis{debounce: debounce}
}

// Observe records whether the reading is above its limit at now.
func (h *Hysteresis) Observe(high bool, now time.Time) Verdict {
	if high {
		h.normalSince = time.Time{}
		if h.highSince.IsZero() {
			h.highSince = now
		}
		if now.Sub(h.highSince) >= h.debounce {
			return SustainedHigh
		}
		return Undecided
	}

	h.highSince = time.Time{}
	if h.normalSince.IsZero() {
		h.normalSince = now
	}
	if now.Sub(h.normalSince) >= h.debounce {
		return SustainedNormal
	}
	return Undecided
}

// HighSince returns the start of the current high streak, zero when none
func (h *Hysteresis) HighSince() time.Time { return h.highSince }

// NormalSince returns the start of the current normal streak, zero when none
func (h *Hysteresis) NormalSince() time.Time { return h.normalSince }
