// Package control implements the decision loop: it turns the latest readings
// and thresholds into desired actuator states and dispatches the ones that
// differ from what was last commanded.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/dispatch"
	"github.com/dokzlo13/roomd/internal/metrics"
	"github.com/dokzlo13/roomd/internal/snapshot"
	"github.com/dokzlo13/roomd/internal/thresholds"
)

// Dispatcher delivers one command to one actuator
type Dispatcher interface {
	Dispatch(ctx context.Context, device, action, reason string) dispatch.Result
}

// SnapshotSource provides a point-in-time copy of the readings
type SnapshotSource interface {
	Snapshot() snapshot.Snapshot
}

// ThresholdSource provides the current thresholds
type ThresholdSource interface {
	Get() thresholds.Values
}

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	TickInterval time.Duration // default 5s
	CO2Debounce  time.Duration // default 5s

	// RetryFailed rolls the ledger entry back when a dispatch does not
	// succeed, so the next tick sends the command again. When false the
	// ledger keeps the requested action regardless of the outcome.
	RetryFailed bool

	// Extra groups run after the built-in ones and may override them
	Extra []RuleGroup

	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Engine runs the decision loop. It must be driven by a single goroutine.
type Engine struct {
	snapshots  SnapshotSource
	thresholds ThresholdSource
	dispatcher Dispatcher

	interval    time.Duration
	retryFailed bool
	metrics     *metrics.Metrics
	now         func() time.Time

	co2       *Hysteresis
	commanded *Commanded
	groups    []RuleGroup
}

// New creates an Engine with the standard rule groups.
func New(snapshots SnapshotSource, th ThresholdSource, d Dispatcher, opts Options) *Engine {
	if opts.TickInterval == 0 {
		opts.TickInterval = 5 * time.Second
	}
	if opts.CO2Debounce == 0 {
		opts.CO2Debounce = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		snapshots:   snapshots,
		thresholds:  th,
		dispatcher:  d,
		interval:    opts.TickInterval,
		retryFailed: opts.RetryFailed,
		metrics:     opts.Metrics,
		now:         opts.Now,
		co2:         NewHysteresis(opts.CO2Debounce),
		commanded:   NewCommanded(),
	}

	// Evaluation order matters: a later group overrides an earlier one for
	// the same actuator (humidity keeps ventilation on against CO2).
	e.groups = []RuleGroup{
		{Name: "temperature", Eval: temperatureRule},
		{Name: "co2", Eval: co2Rule(e.co2)},
		{Name: "humidity", Eval: humidityRule},
		{Name: "motion", Eval: motionRule},
		{Name: "noise", Eval: noiseRule},
		{Name: "led", Eval: ledRule},
	}
	e.groups = append(e.groups, opts.Extra...)
	return e
}

// Commanded returns a copy of the last action requested per actuator
func (e *Engine) Commanded() map[string]string {
	return e.commanded.Snapshot()
}

// Run evaluates once immediately and then on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Dur("tick_interval", e.interval).
		Bool("retry_failed", e.retryFailed).
		Msg("Decision loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Decision loop stopping")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluate → diff → dispatch pass and returns the results of
// the dispatches it made, in dispatch order.
func (e *Engine) Tick(ctx context.Context) []dispatch.Result {
	e.metrics.Tick()

	in := Input{
		Snapshot:   e.snapshots.Snapshot(),
		Thresholds: e.thresholds.Get(),
		Now:        e.now(),
	}
	desired := e.evaluate(in)

	var results []dispatch.Result
	for _, device := range Order {
		intent, ok := desired[device]
		if !ok {
			continue
		}
		if current, had := e.commanded.Get(device); had && current == intent.Action {
			continue
		}
		if ctx.Err() != nil {
			return results
		}

		prev, had := e.commanded.Set(device, intent.Action)
		res := e.dispatcher.Dispatch(ctx, device, intent.Action, intent.Reason)
		results = append(results, res)

		if !res.OK() && e.retryFailed {
			e.commanded.Restore(device, prev, had)
			log.Debug().
				Str("device", device).
				Str("action", intent.Action).
				Str("outcome", string(res.Outcome)).
				Msg("Dispatch failed, will retry on next tick")
		}
	}
	return results
}

// evaluate runs every rule group over the same input and merges their
// intents in group order.
func (e *Engine) evaluate(in Input) Desired {
	desired := make(Desired)
	for _, g := range e.groups {
		out, err := e.runGroup(g, in)
		if err != nil {
			e.metrics.RuleError(g.Name)
			log.Error().Err(err).Str("group", g.Name).Msg("Rule group failed")
			continue
		}
		desired.merge(out)
	}
	return desired
}

func (e *Engine) runGroup(g RuleGroup, in Input) (out Desired, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out = make(Desired)
	if err := g.Eval(in, out); err != nil {
		return nil, err
	}
	return out, nil
}
