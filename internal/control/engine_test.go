package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/roomd/internal/dispatch"
	"github.com/dokzlo13/roomd/internal/snapshot"
	"github.com/dokzlo13/roomd/internal/thresholds"
)

type sent struct {
	device, action, reason string
}

// fakeDispatcher records every command and answers with a per-device outcome
type fakeDispatcher struct {
	calls    []sent
	outcomes map[string]dispatch.Outcome
}

func (f *fakeDispatcher) Dispatch(_ context.Context, device, action, reason string) dispatch.Result {
	f.calls = append(f.calls, sent{device, action, reason})
	outcome := dispatch.Success
	if o, ok := f.outcomes[device]; ok {
		outcome = o
	}
	return dispatch.Result{Device: device, Action: action, Outcome: outcome, Sent: true}
}

func (f *fakeDispatcher) sentTo(device string) []string {
	var actions []string
	for _, c := range f.calls {
		if c.device == device {
			actions = append(actions, c.action)
		}
	}
	return actions
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	store  *snapshot.Store
	th     *thresholds.Store
	disp   *fakeDispatcher
	clock  *clock
	engine *Engine
}

func newHarness(retryFailed bool) *harness {
	h := &harness{
		store: snapshot.NewStore(),
		th: thresholds.New(thresholds.Values{
			TempHigh: 28, TempLow: 18, HumidityHigh: 70, CO2High: 1000, NoiseHigh: 70, MotionTimeout: 300,
		}),
		disp:  &fakeDispatcher{outcomes: map[string]dispatch.Outcome{}},
		clock: &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.engine = New(h.store, h.th, h.disp, Options{
		CO2Debounce: 5 * time.Second,
		RetryFailed: retryFailed,
		Now:         h.clock.now,
	})
	return h
}

func (h *harness) tick() []dispatch.Result {
	return h.engine.Tick(context.Background())
}

func desiredFor(h *harness) Desired {
	return h.engine.evaluate(Input{Snapshot: h.store.Snapshot(), Thresholds: h.th.Get(), Now: h.clock.now()})
}

func TestTemperatureRule(t *testing.T) {
	tests := []struct {
		temp        float64
		wantCooling string
		wantHeating string
	}{
		{35, On, Off},
		{28.1, On, Off},
		{28, Off, Off},
		{22, Off, Off},
		{18, Off, Off},
		{17.9, Off, On},
		{-5, Off, On},
	}

	for _, tt := range tests {
		in := Input{Snapshot: snapshot.Snapshot{Temperature: &tt.temp}, Thresholds: thresholds.Values{TempHigh: 28, TempLow: 18}}
		out := make(Desired)
		if err := temperatureRule(in, out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out[Cooling].Action != tt.wantCooling || out[Heating].Action != tt.wantHeating {
			t.Errorf("temp %v: cooling=%s heating=%s, want %s/%s",
				tt.temp, out[Cooling].Action, out[Heating].Action, tt.wantCooling, tt.wantHeating)
		}
		if out[Cooling].Action == On && out[Heating].Action == On {
			t.Errorf("temp %v: cooling and heating both ON", tt.temp)
		}
	}
}

func TestMissingReadingsSkipGroups(t *testing.T) {
	h := newHarness(false)
	d := desiredFor(h)

	for _, device := range []string{Cooling, Heating, Ventilation, VentActuator, Light, Alarm} {
		if _, ok := d[device]; ok {
			t.Errorf("%s: no opinion expected without readings, got %+v", device, d[device])
		}
	}
	if d[LED].Action != string(snapshot.ColorOff) {
		t.Errorf("LED: got %q, want OFF", d[LED].Action)
	}
}

func TestCO2BelowDebounceSendsNothing(t *testing.T) {
	h := newHarness(false)

	h.store.SetCO2(1500)
	h.tick()
	h.clock.advance(4900 * time.Millisecond)
	h.tick()

	h.store.SetCO2(800)
	h.clock.advance(100 * time.Millisecond)
	h.tick()

	if got := h.disp.sentTo(Ventilation); len(got) != 0 {
		t.Errorf("ventilation: expected no command, got %v", got)
	}
	if got := h.disp.sentTo(VentActuator); len(got) != 0 {
		t.Errorf("vent actuator: expected no command, got %v", got)
	}
}

func TestCO2SustainedHighSendsOnce(t *testing.T) {
	h := newHarness(false)

	h.store.SetCO2(1500)
	h.tick()
	h.clock.advance(5 * time.Second)
	h.tick()
	h.clock.advance(5 * time.Second)
	h.tick()

	if got := h.disp.sentTo(Ventilation); len(got) != 1 || got[0] != On {
		t.Errorf("ventilation: got %v, want [ON]", got)
	}
	if got := h.disp.sentTo(VentActuator); len(got) != 1 || got[0] != Open {
		t.Errorf("vent actuator: got %v, want [open]", got)
	}
}

func TestCO2OscillationSendsNothing(t *testing.T) {
	h := newHarness(false)

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			h.store.SetCO2(1200)
		} else {
			h.store.SetCO2(900)
		}
		h.tick()
		h.clock.advance(2 * time.Second)
	}

	if got := h.disp.sentTo(Ventilation); len(got) != 0 {
		t.Errorf("ventilation: expected no command under oscillation, got %v", got)
	}
}

func TestCO2NormalClosesVent(t *testing.T) {
	h := newHarness(false)

	h.store.SetCO2(1500)
	h.tick()
	h.clock.advance(5 * time.Second)
	h.tick()

	h.store.SetCO2(600)
	h.clock.advance(time.Second)
	h.tick()
	h.clock.advance(5 * time.Second)
	h.tick()

	if got := h.disp.sentTo(VentActuator); len(got) != 2 || got[1] != Close {
		t.Errorf("vent actuator: got %v, want [open close]", got)
	}
	if got := h.disp.sentTo(Ventilation); len(got) != 2 || got[1] != Off {
		t.Errorf("ventilation: got %v, want [ON OFF]", got)
	}
}

func TestHumidityOverridesCO2Off(t *testing.T) {
	h := newHarness(false)

	h.store.SetCO2(600)
	h.store.SetHumidity(85)
	for i := 0; i < 4; i++ {
		h.tick()
		h.clock.advance(5 * time.Second)
	}

	if got := h.disp.sentTo(Ventilation); len(got) != 1 || got[0] != On {
		t.Errorf("ventilation: got %v, want a single ON", got)
	}
	if got := h.disp.sentTo(VentActuator); len(got) != 1 || got[0] != Close {
		t.Errorf("vent actuator: got %v, want a single close", got)
	}
}

func TestMotionLighting(t *testing.T) {
	h := newHarness(false)
	timeout := 300 * time.Second

	h.store.SetMotion(true, h.clock.now())
	h.tick()
	if got := h.disp.sentTo(Light); len(got) != 1 || got[0] != On {
		t.Fatalf("light: got %v, want [ON]", got)
	}

	h.store.SetMotion(false, h.clock.now())
	h.clock.advance(timeout - time.Second)
	h.tick()
	if got := desiredFor(h)[Light]; got.Action != "" {
		t.Errorf("one second before timeout: expected no opinion, got %+v", got)
	}
	if got := h.disp.sentTo(Light); len(got) != 1 {
		t.Errorf("light should stay ON before timeout, sent %v", got)
	}

	h.clock.advance(2 * time.Second)
	h.tick()
	if got := h.disp.sentTo(Light); len(got) != 2 || got[1] != Off {
		t.Errorf("light: got %v, want [ON OFF]", got)
	}
}

func TestMotionDetectedIgnoresElapsedTime(t *testing.T) {
	h := newHarness(false)
	h.store.SetMotion(true, h.clock.now())
	h.clock.advance(time.Hour)

	if got := desiredFor(h)[Light].Action; got != On {
		t.Errorf("light: got %q, want ON", got)
	}
}

func TestNoiseAlarm(t *testing.T) {
	h := newHarness(false)

	levels := []float64{80, 60, 80}
	for _, l := range levels {
		h.store.SetNoise(l, h.clock.now())
		h.tick()
		h.clock.advance(5 * time.Second)
	}

	got := h.disp.sentTo(Alarm)
	want := []string{On, Off, On}
	if len(got) != len(want) {
		t.Fatalf("alarm: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alarm[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLEDPriority(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name  string
		temp  *float64
		noise *float64
		want  snapshot.Color
	}{
		{"hot and loud", f(30), f(80), snapshot.ColorBlue},
		{"cold and loud", f(10), f(80), snapshot.ColorRed},
		{"loud", f(22), f(80), snapshot.ColorGreen},
		{"loud without temperature", nil, f(80), snapshot.ColorGreen},
		{"normal", f(22), f(40), snapshot.ColorOff},
		{"nothing", nil, nil, snapshot.ColorOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{
				Snapshot:   snapshot.Snapshot{Temperature: tt.temp, NoiseLevel: tt.noise},
				Thresholds: thresholds.Values{TempHigh: 28, TempLow: 18, NoiseHigh: 70},
			}
			out := make(Desired)
			if err := ledRule(in, out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := snapshot.Color(out[LED].Action); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDispatchOrder(t *testing.T) {
	h := newHarness(false)
	h.store.SetTemperature(30)
	h.store.SetMotion(true, h.clock.now())
	h.store.SetNoise(80, h.clock.now())
	h.tick()

	want := []string{Cooling, Heating, Light, Alarm, LED}
	if len(h.disp.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %+v", len(h.disp.calls), len(want), h.disp.calls)
	}
	for i, device := range want {
		if h.disp.calls[i].device != device {
			t.Errorf("call %d: got %s, want %s", i, h.disp.calls[i].device, device)
		}
	}
	if h.disp.calls[0].reason != "Temperature too high: 30.0°C" {
		t.Errorf("reason: got %q", h.disp.calls[0].reason)
	}
}

func TestUnchangedStateIsNotResent(t *testing.T) {
	h := newHarness(false)
	h.store.SetTemperature(30)

	h.tick()
	first := len(h.disp.calls)
	h.tick()
	h.tick()

	if len(h.disp.calls) != first {
		t.Errorf("expected no new dispatches, got %d more", len(h.disp.calls)-first)
	}
}

func TestFailedDispatchRetryPolicy(t *testing.T) {
	tests := []struct {
		name        string
		retryFailed bool
		wantSends   int
	}{
		{"ledger keeps failed command", false, 1},
		{"ledger rolls back failed command", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.retryFailed)
			h.disp.outcomes[Cooling] = dispatch.Unreachable
			h.store.SetTemperature(30)

			h.tick()
			h.tick()
			h.tick()

			if got := len(h.disp.sentTo(Cooling)); got != tt.wantSends {
				t.Errorf("cooling sends: got %d, want %d", got, tt.wantSends)
			}
			if got := len(h.disp.sentTo(Heating)); got != 1 {
				t.Errorf("heating succeeded and should be sent once, got %d", got)
			}
		})
	}
}

func TestFailedDispatchResentAfterFlip(t *testing.T) {
	h := newHarness(false)
	h.disp.outcomes[Cooling] = dispatch.Unreachable

	h.store.SetTemperature(30)
	h.tick()
	h.store.SetTemperature(22)
	h.tick()
	h.store.SetTemperature(30)
	h.tick()

	got := h.disp.sentTo(Cooling)
	want := []string{On, Off, On}
	if len(got) != len(want) {
		t.Fatalf("cooling: got %v, want %v", got, want)
	}
}

func TestRestartResendsEverythingOnce(t *testing.T) {
	h := newHarness(false)
	h.store.SetTemperature(30)
	h.store.SetNoise(40, h.clock.now())
	h.tick()
	before := len(h.disp.calls)

	// A new engine has an empty ledger
	restarted := New(h.store, h.th, h.disp, Options{Now: h.clock.now})
	restarted.Tick(context.Background())
	restarted.Tick(context.Background())

	if got := len(h.disp.calls) - before; got != before {
		t.Errorf("restart: got %d dispatches, want %d", got, before)
	}
}

func TestFailingGroupDoesNotStopOthers(t *testing.T) {
	tests := []struct {
		name string
		eval Rule
	}{
		{"error", func(in Input, out Desired) error {
			out.Set(Alarm, On, "partial")
			return errors.New("bad input")
		}},
		{"panic", func(in Input, out Desired) error {
			out.Set(Alarm, On, "partial")
			panic("boom")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(false)
			h.engine.groups = append([]RuleGroup{{Name: "broken", Eval: tt.eval}}, h.engine.groups...)
			h.store.SetTemperature(30)

			h.tick()

			if got := h.disp.sentTo(Cooling); len(got) != 1 || got[0] != On {
				t.Errorf("cooling: got %v, want [ON]", got)
			}
			if got := h.disp.sentTo(Alarm); len(got) != 0 {
				t.Errorf("intents of a failed group must be discarded, alarm got %v", got)
			}
		})
	}
}

func TestExtraGroupsOverride(t *testing.T) {
	h := newHarness(false)
	h.engine = New(h.store, h.th, h.disp, Options{
		Now: h.clock.now,
		Extra: []RuleGroup{{Name: "custom", Eval: func(in Input, out Desired) error {
			out.Set(Light, Off, "quiet hours")
			return nil
		}}},
	})
	h.store.SetMotion(true, h.clock.now())

	h.tick()

	if got := h.disp.sentTo(Light); len(got) != 1 || got[0] != Off {
		t.Errorf("light: got %v, want [OFF]", got)
	}
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	h := newHarness(false)
	h.store.SetTemperature(30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.engine.Tick(ctx)

	if len(h.disp.calls) != 0 {
		t.Errorf("expected no dispatch after cancellation, got %d", len(h.disp.calls))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(false)
	h.engine.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
