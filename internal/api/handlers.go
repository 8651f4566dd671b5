package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/eventbus"
	"github.com/dokzlo13/roomd/internal/history"
)

const (
	defaultLogLimit = 50
	maxBodyBytes    = 64 << 10
)

var errNotObject = errors.New("request body must be a JSON object")

// environment quantities: body key, unit
var environmentFields = []struct {
	key  string
	unit string
}{
	{"temperature", "°C"},
	{"pressure", "hPa"},
	{"humidity", "%"},
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	now := s.deps.Now()
	for _, f := range environmentFields {
		v, ok := floatField(body, f.key)
		if !ok {
			continue
		}
		switch f.key {
		case "temperature":
			s.deps.Snapshots.SetTemperature(v)
		case "pressure":
			s.deps.Snapshots.SetPressure(v)
		case "humidity":
			s.deps.Snapshots.SetHumidity(v)
		}
		s.recordReading(now, f.key, v, f.unit)
	}

	writeSuccess(w)
}

func (s *Server) handleCO2(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	if v, ok := floatField(body, "co2_level"); ok {
		s.deps.Snapshots.SetCO2(v)
		s.recordReading(s.deps.Now(), "co2", v, "ppm")
	} else {
		log.Warn().Interface("co2_level", body["co2_level"]).Msg("Ignoring CO2 report without a numeric co2_level")
	}

	writeSuccess(w)
}

func (s *Server) handleMotion(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	now := s.deps.Now()
	report := history.MotionReport{
		Timestamp:     now,
		Detected:      boolField(body, "motion_detected"),
		IsDrowsyAlert: boolField(body, "is_drowsy_alert"),
	}
	report.IdleDuration, _ = floatField(body, "idle_duration")

	s.deps.Snapshots.SetMotion(report.Detected, now)
	s.deps.Metrics.Reading("motion")
	s.publish(eventbus.EventTypeMotionReport, report)

	log.Debug().
		Bool("detected", report.Detected).
		Bool("drowsy_alert", report.IsDrowsyAlert).
		Float64("idle_duration", report.IdleDuration).
		Msg("Motion report received")

	writeSuccess(w)
}

func (s *Server) handleNoise(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	level, ok := floatField(body, "noise_level")
	if !ok {
		log.Warn().Interface("noise_level", body["noise_level"]).Msg("Ignoring noise report without a numeric noise_level")
		writeSuccess(w)
		return
	}

	now := s.deps.Now()
	report := history.NoiseReport{Timestamp: now, NoiseLevel: level}
	report.Duration, _ = floatField(body, "duration")

	s.deps.Snapshots.SetNoise(level, now)
	s.deps.Metrics.Reading("noise")
	s.publish(eventbus.EventTypeNoiseReport, report)

	log.Debug().Float64("noise_level", level).Float64("duration", report.Duration).Msg("Noise report received")

	writeSuccess(w)
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Thresholds.Get())
}

func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	updates := make(map[string]float64, len(body))
	for key := range body {
		if v, ok := floatField(body, key); ok {
			updates[key] = v
		}
	}

	applied := s.deps.Thresholds.Update(updates)
	current := s.deps.Thresholds.Get()
	if len(applied) > 0 {
		log.Info().Strs("updated", applied).Interface("thresholds", current).Msg("Thresholds updated")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"thresholds": current,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	commanded := map[string]string{}
	if s.deps.Commanded != nil {
		commanded = s.deps.Commanded.Commanded()
	}
	endpoints := s.deps.Endpoints
	if endpoints == nil {
		endpoints = map[string]string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_data":        s.deps.Snapshots.Snapshot(),
		"thresholds":         s.deps.Thresholds.Get(),
		"actuator_endpoints": endpoints,
		"commanded":          commanded,
		"timestamp":          s.deps.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logType, err := history.ParseLogType(mux.Vars(r)["type"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid log type"})
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history store unavailable"))
		return
	}
	rows, err := s.deps.History.Recent(logType, limit)
	if err != nil {
		log.Error().Err(err).Str("type", string(logType)).Msg("Failed to read logs")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": rows})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "roomd",
		"status":  "running",
		"version": s.deps.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.deps.ReadyChecks {
		if err := c.Check(r.Context()); err != nil {
			log.Warn().Err(err).Str("check", c.Name).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  c.Name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// recordReading publishes one environment quantity for the sensor log
func (s *Server) recordReading(at time.Time, sensorType string, value float64, unit string) {
	s.deps.Metrics.Reading(sensorType)
	s.publish(eventbus.EventTypeSensorReading, history.SensorReading{
		Timestamp:  at,
		SensorType: sensorType,
		Value:      value,
		Unit:       unit,
	})
	log.Debug().Str("sensor", sensorType).Float64("value", value).Str("unit", unit).Msg("Reading received")
}

func (s *Server) publish(t eventbus.EventType, payload any) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Publish(eventbus.Event{Type: t, Payload: payload})
}

// readObject decodes the request body as a JSON object. On failure it has
// already written the error response.
func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := decodeObject(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, errNotObject)
		return nil, false
	}
	return body, true
}

func decodeObject(rc io.ReadCloser) (map[string]any, error) {
	defer rc.Close()

	var body map[string]any
	if err := json.NewDecoder(rc).Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errNotObject
	}
	return body, nil
}

// floatField accepts JSON numbers and finite numeric strings
func floatField(body map[string]any, key string) (float64, bool) {
	switch v := body[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// boolField accepts JSON booleans, numbers and "true"/"false" strings.
// Anything else is false.
func boolField(body map[string]any, key string) bool {
	switch v := body[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"status": "error", "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
