// Package dispatch sends commands to actuator endpoints and classifies the outcome.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/roomd/internal/history"
	"github.com/dokzlo13/roomd/internal/metrics"
	"github.com/dokzlo13/roomd/internal/snapshot"
)

// DeviceLED is the indicator light, which has its own command shape and
// success rules.
const DeviceLED = "led"

// Outcome classifies a dispatch attempt
type Outcome string

const (
	Success     Outcome = "success"
	Unreachable Outcome = "unreachable" // no endpoint, connection failure or timeout
	Rejected    Outcome = "rejected"    // the actuator answered but refused
)

// ErrUnknownDevice is returned for devices without a configured endpoint
var ErrUnknownDevice = errors.New("no endpoint configured for device")

// Result describes one dispatch request
type Result struct {
	RequestID  string
	Device     string
	Action     string
	Outcome    Outcome
	Sent       bool // false when nothing had to be sent
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the command is known to have taken effect
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Auditor receives one entry per dispatch attempt.
// Implementations must not block; persistence failures stay inside them.
type Auditor interface {
	Audit(entry history.ControlEntry)
}

// AuditFunc adapts a function to the Auditor interface
type AuditFunc func(entry history.ControlEntry)

// Audit calls f(entry)
func (f AuditFunc) Audit(entry history.ControlEntry) { f(entry) }

// LEDState is the record of the color the LED controller last confirmed
type LEDState interface {
	LEDColor() snapshot.Color
	SetLEDColor(snapshot.Color)
}

// Options tune a Dispatcher. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration // per request, default 5s
	RateLimitRPS float64       // outbound requests per second, default 10
	Client       *http.Client
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Dispatcher delivers commands to actuators, one request at a time per caller
type Dispatcher struct {
	endpoints map[string]string
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	led       LEDState
	auditor   Auditor
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a Dispatcher for the given device → URL map
func New(endpoints map[string]string, led LEDState, auditor Auditor, opts Options) *Dispatcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 10.0
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	burst := int(opts.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	eps := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		eps[k] = v
	}

	return &Dispatcher{
		endpoints: eps,
		client:    opts.Client,
		timeout:   opts.Timeout,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst),
		led:       led,
		auditor:   auditor,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Endpoints returns a copy of the configured device → URL map
func (d *Dispatcher) Endpoints() map[string]string {
	out := make(map[string]string, len(d.endpoints))
	for k, v := range d.endpoints {
		out[k] = v
	}
	return out
}

// Dispatch sends action to device and blocks for at most the configured timeout.
// Failures are reported in the Result, never as a panic or returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, device, action, reason string) Result {
	if device == DeviceLED {
		return d.dispatchLED(ctx, action, reason)
	}
	return d.dispatchAction(ctx, device, action, reason)
}

// dispatchAction is the generic path: any HTTP answer counts as delivered.
func (d *Dispatcher) dispatchAction(ctx context.Context, device, action, reason string) Result {
	res := Result{RequestID: uuid.NewString(), Device: device, Action: action}
	start := time.Now()

	resp, err := d.post(ctx, device, res.RequestID, map[string]string{"action": action})
	res.Duration = time.Since(start)
	res.Sent = true

	switch {
	case err != nil:
		res.Outcome = Unreachable
		res.Err = err
		log.Warn().Err(err).Str("device", device).Str("action", action).Msg("Actuator unreachable")
	default:
		res.StatusCode = resp.StatusCode
		res.Outcome = Success
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// The generic path does not interpret the answer; a busy vent
			// motor (503) still counts as delivered.
			log.Warn().
				Str("device", device).
				Str("action", action).
				Int("status", resp.StatusCode).
				Msg("Actuator answered with non-success status")
		}
		log.Info().Str("device", device).Str("action", action).Str("reason", reason).Msg("Actuator command sent")
	}

	d.finish(res, reason)
	return res
}

// dispatchLED only talks to the controller when the color actually changes,
// and only a 200 answer moves the recorded color.
func (d *Dispatcher) dispatchLED(ctx context.Context, action, reason string) Result {
	color := snapshot.Color(strings.ToUpper(action))
	res := Result{RequestID: uuid.NewString(), Device: DeviceLED, Action: string(color)}

	if d.led != nil && d.led.LEDColor() == color {
		res.Outcome = Success
		log.Debug().Str("color", string(color)).Msg("LED already set, nothing to send")
		return res
	}

	if !color.Valid() {
		res.Outcome = Rejected
		res.Err = fmt.Errorf("invalid LED color %q", action)
		log.Warn().Err(res.Err).Msg("LED command refused")
		d.finish(res, reason)
		return res
	}

	start := time.Now()
	resp, err := d.post(ctx, DeviceLED, res.RequestID, map[string]string{"color": string(color)})
	res.Duration = time.Since(start)
	res.Sent = true

	switch {
	case err != nil:
		res.Outcome = Unreachable
		res.Err = err
		log.Warn().Err(err).Str("color", string(color)).Msg("LED controller unreachable")
	case resp.StatusCode != http.StatusOK:
		res.StatusCode = resp.StatusCode
		res.Outcome = Rejected
		res.Err = fmt.Errorf("led controller answered %d", resp.StatusCode)
		log.Warn().Int("status", resp.StatusCode).Str("color", string(color)).Msg("Failed to set LED color")
	default:
		res.StatusCode = resp.StatusCode
		res.Outcome = Success
		if d.led != nil {
			d.led.SetLEDColor(color)
		}
		log.Info().Str("color", string(color)).Str("reason", reason).Msg("LED color set")
	}

	d.finish(res, reason)
	return res
}

// post sends body as JSON to the device endpoint. The response body is
// drained and closed before returning; only the status code is kept.
func (d *Dispatcher) post(ctx context.Context, device, requestID string, body any) (*http.Response, error) {
	url, ok := d.endpoints[device]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout after %s: %w", d.timeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp, nil
}

func (d *Dispatcher) finish(res Result, reason string) {
	d.metrics.Dispatch(res.Device, string(res.Outcome), res.Duration)

	if d.auditor == nil {
		return
	}
	entry := history.ControlEntry{
		RequestID: res.RequestID,
		Timestamp: d.now(),
		Device:    res.Device,
		Action:    res.Action,
		Reason:    reason,
		Outcome:   string(res.Outcome),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	d.auditor.Audit(entry)
}
