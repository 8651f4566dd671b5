// Package script runs an optional user Lua rule after the built-in rule groups.
//
// The script defines a global function
//
//	function evaluate(s, t, now) ... end
//
// where s is the snapshot, t the thresholds and now the unix time in seconds.
// It returns nil for no opinion, or a table keyed by actuator name whose
// values are either an action string or {action = ..., reason = ...}.
package script

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/roomd/internal/control"
)

const entryPoint = "evaluate"

// Rule is a loaded Lua rule. Its state is not safe for concurrent use; the
// decision loop is the only caller.
type Rule struct {
	name string
	L    *lua.LState
	fn   *lua.LFunction
}

// LoadFile loads a rule script from disk
func LoadFile(path string) (*Rule, error) {
	L := newState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules script %s: %w", path, err)
	}
	return newRule(path, L)
}

// LoadString loads a rule script from source
func LoadString(name, src string) (*Rule, error) {
	L := newState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules script %s: %w", name, err)
	}
	return newRule(name, L)
}

func newState() *lua.LState {
	L := lua.NewState()
	L.PreloadModule("log", newLogModule().Loader)
	return L
}

func newRule(name string, L *lua.LState) (*Rule, error) {
	fn, ok := L.GetGlobal(entryPoint).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("rules script %s does not define function %s", name, entryPoint)
	}
	return &Rule{name: name, L: L, fn: fn}, nil
}

// Group returns the rule as a named group for the decision engine
func (r *Rule) Group() control.RuleGroup {
	return control.RuleGroup{Name: "script", Eval: r.Eval}
}

// Eval calls the script and copies its intents into out
func (r *Rule) Eval(in control.Input, out control.Desired) error {
	L := r.L

	L.Push(r.fn)
	L.Push(snapshotTable(L, in))
	L.Push(thresholdsTable(L, in))
	L.Push(lua.LNumber(float64(in.Now.UnixMilli()) / 1000))

	if err := L.PCall(3, 1, nil); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	result := L.Get(-1)
	L.Pop(1)

	if result == lua.LNil {
		return nil
	}
	tbl, ok := result.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%s: evaluate returned %s, want table or nil", r.name, result.Type())
	}

	intents, err := parseIntents(tbl)
	if err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	devices := make([]string, 0, len(intents))
	for device := range intents {
		devices = append(devices, device)
	}
	sort.Strings(devices)
	for _, device := range devices {
		out.Set(device, intents[device].Action, intents[device].Reason)
	}
	return nil
}

// Close releases the Lua state
func (r *Rule) Close() {
	r.L.Close()
}

func parseIntents(tbl *lua.LTable) (map[string]control.Intent, error) {
	known := make(map[string]bool, len(control.Order))
	for _, d := range control.Order {
		known[d] = true
	}

	intents := make(map[string]control.Intent)
	var err error
	tbl.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		device, ok := k.(lua.LString)
		if !ok || !known[string(device)] {
			err = fmt.Errorf("unknown actuator %s", lua.LVAsString(k))
			return
		}

		intent := control.Intent{Reason: "Rules script"}
		switch val := v.(type) {
		case lua.LString:
			intent.Action = string(val)
		case *lua.LTable:
			intent.Action = lua.LVAsString(val.RawGetString("action"))
			if reason := lua.LVAsString(val.RawGetString("reason")); reason != "" {
				intent.Reason = reason
			}
		default:
			err = fmt.Errorf("actuator %s: unsupported value type %s", device, v.Type())
			return
		}
		if intent.Action == "" {
			err = fmt.Errorf("actuator %s: empty action", device)
			return
		}
		intents[string(device)] = intent
	})
	return intents, err
}

func snapshotTable(L *lua.LState, in control.Input) *lua.LTable {
	s := in.Snapshot
	tbl := L.NewTable()

	setFloat := func(key string, v *float64) {
		if v != nil {
			tbl.RawSetString(key, lua.LNumber(*v))
		}
	}
	setFloat("temperature", s.Temperature)
	setFloat("humidity", s.Humidity)
	setFloat("pressure", s.Pressure)
	setFloat("co2_level", s.CO2)
	setFloat("noise_level", s.NoiseLevel)

	tbl.RawSetString("motion_detected", lua.LBool(s.MotionDetected))
	if s.MotionTimestamp != nil {
		tbl.RawSetString("motion_age", lua.LNumber(in.Now.Sub(*s.MotionTimestamp).Seconds()))
	}
	tbl.RawSetString("led_state", lua.LString(s.LEDColor))
	return tbl
}

func thresholdsTable(L *lua.LState, in control.Input) *lua.LTable {
	t := in.Thresholds
	tbl := L.NewTable()
	tbl.RawSetString("temp_high", lua.LNumber(t.TempHigh))
	tbl.RawSetString("temp_low", lua.LNumber(t.TempLow))
	tbl.RawSetString("humidity_high", lua.LNumber(t.HumidityHigh))
	tbl.RawSetString("co2_high", lua.LNumber(t.CO2High))
	tbl.RawSetString("noise_high", lua.LNumber(t.NoiseHigh))
	tbl.RawSetString("motion_timeout", lua.LNumber(t.MotionTimeout))
	return tbl
}
