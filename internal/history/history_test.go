package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/dokzlo13/roomd/internal/db"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestParseLogType(t *testing.T) {
	tests := []struct {
		in      string
		want    LogType
		wantErr bool
	}{
		{"sensor", LogSensor, false},
		{"motion", LogMotion, false},
		{"noise", LogNoise, false},
		{"control", LogControl, false},
		{"foo", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		err := s.AppendSensor(SensorReading{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			SensorType: "temperature",
			Value:      20 + float64(i),
			Unit:       "°C",
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := s.Recent(LogSensor, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0]["value"] != 24.0 {
		t.Errorf("newest row first: got %v", rows[0]["value"])
	}
	if rows[2]["value"] != 22.0 {
		t.Errorf("third row: got %v", rows[2]["value"])
	}
	if _, ok := rows[0]["timestamp"].(string); !ok {
		t.Errorf("timestamp should be rendered as string, got %T", rows[0]["timestamp"])
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	for i := 0; i < 60; i++ {
		if err := s.AppendNoise(NoiseReport{Timestamp: now, NoiseLevel: float64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := s.Recent(LogNoise, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 50 {
		t.Errorf("expected default limit 50, got %d", len(rows))
	}
}

func TestMotionRowsKeepExtraFields(t *testing.T) {
	s := openStore(t)
	err := s.AppendMotion(MotionReport{Timestamp: time.Now(), Detected: true, IsDrowsyAlert: true, IdleDuration: 42})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := s.Recent(LogMotion, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["idle_duration"] != 42.0 {
		t.Errorf("idle_duration: got %v", rows[0]["idle_duration"])
	}
}

func TestControlEntries(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	entries := []ControlEntry{
		{RequestID: "a", Timestamp: now.Add(-time.Second), Device: "cooling", Action: "ON", Reason: "hot", Outcome: "success"},
		{RequestID: "b", Timestamp: now, Device: "led", Action: "BLUE", Reason: "hot", Outcome: "rejected", Error: "led controller answered 500"},
	}
	for _, e := range entries {
		if err := s.AppendControl(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.ControlEntries(10)
	if err != nil {
		t.Fatalf("control entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].RequestID != "b" || got[0].Error == "" {
		t.Errorf("newest entry first with error kept, got %+v", got[0])
	}
	if !got[0].Timestamp.Equal(now) {
		t.Errorf("timestamp: got %v, want %v", got[0].Timestamp, now)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := openStore(t)
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	_ = s.AppendSensor(SensorReading{Timestamp: old, SensorType: "co2", Value: 900, Unit: "ppm"})
	_ = s.AppendSensor(SensorReading{Timestamp: recent, SensorType: "co2", Value: 950, Unit: "ppm"})
	_ = s.AppendControl(ControlEntry{RequestID: "x", Timestamp: old, Device: "alarm", Action: "OFF", Outcome: "success"})

	deleted, err := s.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted rows, got %d", deleted)
	}

	rows, _ := s.Recent(LogSensor, 10)
	if len(rows) != 1 {
		t.Errorf("expected 1 remaining sensor row, got %d", len(rows))
	}
}
