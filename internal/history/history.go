// Package history provides the append-only sensor, motion, noise and control logs.
// The control log doubles as the dispatch audit trail.
package history

import (
	"database/sql"
	"fmt"
	"time"
)

// LogType names one of the persisted logs
type LogType string

const (
	LogSensor  LogType = "sensor"
	LogMotion  LogType = "motion"
	LogNoise   LogType = "noise"
	LogControl LogType = "control"
)

// ParseLogType validates a log name coming from the API or CLI
func ParseLogType(s string) (LogType, error) {
	switch t := LogType(s); t {
	case LogSensor, LogMotion, LogNoise, LogControl:
		return t, nil
	}
	return "", fmt.Errorf("invalid log type %q", s)
}

// SensorReading is one environment quantity as reported
type SensorReading struct {
	Timestamp  time.Time `json:"timestamp"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
}

// MotionReport is one motion sensor report
type MotionReport struct {
	Timestamp     time.Time `json:"timestamp"`
	Detected      bool      `json:"detected"`
	IsDrowsyAlert bool      `json:"is_drowsy_alert"`
	IdleDuration  float64   `json:"idle_duration"`
}

// NoiseReport is one sound level report
type NoiseReport struct {
	Timestamp  time.Time `json:"timestamp"`
	NoiseLevel float64   `json:"noise_level"`
	Duration   float64   `json:"duration"`
}

// ControlEntry is one dispatch attempt
type ControlEntry struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Row is a generic log row returned by Recent
type Row map[string]any

// Store provides append-only logging on top of the shared database
type Store struct {
	db *sql.DB
}

// New creates a new Store using the provided database connection
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendSensor records an environment reading
func (s *Store) AppendSensor(r SensorReading) error {
	_, err := s.db.Exec(
		`INSERT INTO sensor_data (timestamp, sensor_type, value, unit) VALUES (?, ?, ?, ?)`,
		r.Timestamp.UTC().UnixMilli(), r.SensorType, r.Value, r.Unit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// AppendMotion records a motion report
func (s *Store) AppendMotion(r MotionReport) error {
	_, err := s.db.Exec(
		`INSERT INTO motion_log (timestamp, detected, is_drowsy_alert, idle_duration) VALUES (?, ?, ?, ?)`,
		r.Timestamp.UTC().UnixMilli(), r.Detected, r.IsDrowsyAlert, r.IdleDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert motion report: %w", err)
	}
	return nil
}

// AppendNoise records a noise report
func (s *Store) AppendNoise(r NoiseReport) error {
	_, err := s.db.Exec(
		`INSERT INTO noise_log (timestamp, noise_level, duration) VALUES (?, ?, ?)`,
		r.Timestamp.UTC().UnixMilli(), r.NoiseLevel, r.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert noise report: %w", err)
	}
	return nil
}

// AppendControl records a dispatch attempt
func (s *Store) AppendControl(e ControlEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO control_log (request_id, timestamp, device, action, reason, outcome, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Timestamp.UTC().UnixMilli(), e.Device, e.Action, e.Reason, e.Outcome, e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert control entry: %w", err)
	}
	return nil
}

// Recent returns the newest limit rows of a log, newest first
func (s *Store) Recent(t LogType, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	switch t {
	case LogSensor:
		query = `SELECT id, timestamp, sensor_type, value, unit FROM sensor_data ORDER BY timestamp DESC, id DESC LIMIT ?`
	case LogMotion:
		query = `SELECT id, timestamp, detected, is_drowsy_alert, idle_duration FROM motion_log ORDER BY timestamp DESC, id DESC LIMIT ?`
	case LogNoise:
		query = `SELECT id, timestamp, noise_level, duration FROM noise_log ORDER BY timestamp DESC, id DESC LIMIT ?`
	case LogControl:
		query = `SELECT id, timestamp, request_id, device, action, reason, outcome, error FROM control_log ORDER BY timestamp DESC, id DESC LIMIT ?`
	default:
		return nil, fmt.Errorf("invalid log type %q", t)
	}

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// ControlEntries returns the newest control entries as typed values, newest first
func (s *Store) ControlEntries(limit int) ([]ControlEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT request_id, timestamp, device, action, reason, outcome, error
		FROM control_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ControlEntry
	for rows.Next() {
		var e ControlEntry
		var ts int64
		var reason, errStr sql.NullString
		if err := rows.Scan(&e.RequestID, &ts, &e.Device, &e.Action, &reason, &e.Outcome, &errStr); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Reason = reason.String
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries older than the specified duration from every log (retention policy)
func (s *Store) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()

	var total int64
	for _, table := range []string{"sensor_data", "motion_log", "noise_log", "control_log"} {
		result, err := s.db.Exec(`DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

// scanRows turns arbitrary rows into column-keyed maps, rendering the
// millisecond timestamp column as RFC3339
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if col == "timestamp" {
				if ms, ok := v.(int64); ok {
					v = time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
				}
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
