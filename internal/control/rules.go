package control

import (
	"fmt"
	"time"

	"github.com/dokzlo13/roomd/internal/snapshot"
	"github.com/dokzlo13/roomd/internal/thresholds"
)

// Actuator names
const (
	Cooling      = "cooling"
	Heating      = "heating"
	Ventilation  = "ventilation"
	VentActuator = "vent_actuator"
	Light        = "light"
	Alarm        = "alarm"
	LED          = "led"
)

// Order is the order in which actuators are dispatched within a tick.
var Order = []string{Cooling, Heating, Ventilation, VentActuator, Light, Alarm, LED}

// Actions
const (
	On    = "ON"
	Off   = "OFF"
	Open  = "open"
	Close = "close"
)

// Input is everything a rule group may look at during one tick
type Input struct {
	Snapshot   snapshot.Snapshot
	Thresholds thresholds.Values
	Now        time.Time
}

// Intent is a desired action together with the reason it is wanted
type Intent struct {
	Action string
	Reason string
}

// Desired collects intents for one tick. A later Set for the same actuator
// replaces the earlier one.
type Desired map[string]Intent

func (d Desired) Set(device, action, reason string) {
	d[device] = Intent{Action: action, Reason: reason}
}

// merge copies other into d, overriding existing entries
func (d Desired) merge(other Desired) {
	for k, v := range other {
		d[k] = v
	}
}

// Rule evaluates one group of actuators. A rule that returns an error has
// all of its intents for the tick discarded.
type Rule func(in Input, out Desired) error

// RuleGroup is a named rule
type RuleGroup struct {
	Name string
	Eval Rule
}

func temperatureRule(in Input, out Desired) error {
	temp := in.Snapshot.Temperature
	if temp == nil {
		return nil
	}
	t := in.Thresholds

	switch {
	case *temp > t.TempHigh:
		reason := fmt.Sprintf("Temperature too high: %.1f°C", *temp)
		out.Set(Cooling, On, reason)
		out.Set(Heating, Off, reason)
	case *temp < t.TempLow:
		reason := fmt.Sprintf("Temperature too low: %.1f°C", *temp)
		out.Set(Heating, On, reason)
		out.Set(Cooling, Off, reason)
	default:
		reason := fmt.Sprintf("Temperature normal: %.1f°C", *temp)
		out.Set(Cooling, Off, reason)
		out.Set(Heating, Off, reason)
	}
	return nil
}

// co2Rule drives ventilation from CO2 only once the reading has stayed on
// one side of the limit for the debounce period.
func co2Rule(h *Hysteresis) Rule {
	return func(in Input, out Desired) error {
		co2 := in.Snapshot.CO2
		if co2 == nil {
			return nil
		}
		if h == nil {
			return fmt.Errorf("co2 hysteresis not initialized")
		}

		switch h.Observe(*co2 > in.Thresholds.CO2High, in.Now) {
		case SustainedHigh:
			reason := fmt.Sprintf("CO2 high for >=%s: %.0f ppm", fmtSeconds(h.debounce), *co2)
			out.Set(Ventilation, On, reason)
			out.Set(VentActuator, Open, reason)
		case SustainedNormal:
			reason := fmt.Sprintf("CO2 normal for >=%s: %.0f ppm", fmtSeconds(h.debounce), *co2)
			out.Set(Ventilation, Off, reason)
			out.Set(VentActuator, Close, reason)
		}
		return nil
	}
}

func humidityRule(in Input, out Desired) error {
	hum := in.Snapshot.Humidity
	if hum != nil && *hum > in.Thresholds.HumidityHigh {
		out.Set(Ventilation, On, fmt.Sprintf("Humidity too high: %.1f%%", *hum))
	}
	return nil
}

func motionRule(in Input, out Desired) error {
	s := in.Snapshot
	if s.MotionDetected {
		out.Set(Light, On, "Motion detected")
		return nil
	}
	if s.MotionTimestamp == nil {
		return nil
	}
	timeout := in.Thresholds.MotionTimeoutDuration()
	if in.Now.Sub(*s.MotionTimestamp) > timeout {
		out.Set(Light, Off, fmt.Sprintf("No motion for %s", fmtSeconds(timeout)))
	}
	return nil
}

func noiseRule(in Input, out Desired) error {
	noise := in.Snapshot.NoiseLevel
	if noise == nil {
		return nil
	}
	if *noise > in.Thresholds.NoiseHigh {
		out.Set(Alarm, On, fmt.Sprintf("Noise level too high: %.0f dB", *noise))
	} else {
		out.Set(Alarm, Off, fmt.Sprintf("Noise level normal: %.0f dB", *noise))
	}
	return nil
}

// ledRule picks the indicator color by priority: heat, cold, noise, none.
func ledRule(in Input, out Desired) error {
	s, t := in.Snapshot, in.Thresholds

	switch {
	case s.Temperature != nil && *s.Temperature > t.TempHigh:
		out.Set(LED, string(snapshot.ColorBlue), fmt.Sprintf("Temperature too high: %.1f°C", *s.Temperature))
	case s.Temperature != nil && *s.Temperature < t.TempLow:
		out.Set(LED, string(snapshot.ColorRed), fmt.Sprintf("Temperature too low: %.1f°C", *s.Temperature))
	case s.NoiseLevel != nil && *s.NoiseLevel > t.NoiseHigh:
		out.Set(LED, string(snapshot.ColorGreen), fmt.Sprintf("Noise level too high: %.0f dB", *s.NoiseLevel))
	default:
		out.Set(LED, string(snapshot.ColorOff), "All systems normal")
	}
	return nil
}

// fmtSeconds renders a duration the way thresholds are configured, in whole seconds
func fmtSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
