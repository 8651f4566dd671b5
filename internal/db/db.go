// Package db provides a centralized database connection and schema for roomd.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Environment readings - one row per reported quantity
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sensor_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			sensor_type TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sensor_data_ts ON sensor_data(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sensor_data table: %w", err)
	}

	// Motion reports, including the fields no rule consumes yet
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS motion_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			detected BOOLEAN NOT NULL,
			is_drowsy_alert BOOLEAN NOT NULL DEFAULT 0,
			idle_duration REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_motion_log_ts ON motion_log(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create motion_log table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS noise_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			noise_level REAL NOT NULL,
			duration REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_noise_log_ts ON noise_log(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create noise_log table: %w", err)
	}

	// Control log - append-only audit of every dispatch attempt
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS control_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			device TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT,
			outcome TEXT NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_control_log_ts ON control_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_control_log_device ON control_log(device, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create control_log table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
