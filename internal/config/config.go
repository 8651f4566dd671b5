package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server          ServerConfig      `yaml:"server"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Engine          EngineConfig      `yaml:"engine"`
	Dispatch        DispatchConfig    `yaml:"dispatch"`
	Thresholds      ThresholdsConfig  `yaml:"thresholds"`
	Actuators       map[string]string `yaml:"actuators"` // device name -> control URL
	History         HistoryConfig     `yaml:"history"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// ServerConfig contains the HTTP API listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// EngineConfig contains decision loop settings
type EngineConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
	CO2Debounce  Duration `yaml:"co2_debounce"`
	// RetryFailed rolls the commanded state back after a failed dispatch so the
	// next tick sends the command again. Off by default.
	RetryFailed bool `yaml:"retry_failed"`
	// RulesScript is an optional Lua file evaluated after the built-in rules
	RulesScript string `yaml:"rules_script"`
}

// DispatchConfig contains actuator dispatch settings
type DispatchConfig struct {
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

// ThresholdsConfig holds the startup values of the runtime thresholds
type ThresholdsConfig struct {
	TempHigh      float64 `yaml:"temp_high"`
	TempLow       float64 `yaml:"temp_low"`
	HumidityHigh  float64 `yaml:"humidity_high"`
	CO2High       float64 `yaml:"co2_high"`
	NoiseHigh     float64 `yaml:"noise_high"`
	MotionTimeout float64 `yaml:"motion_timeout"` // seconds
}

// HistoryConfig contains history retention settings
type HistoryConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"` // 0 or less keeps history forever
}

// RetentionPeriod returns the retention window as a duration
func (c *HistoryConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// MQTTConfig contains the optional broker mirror settings
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Device names known to the decision engine, with the environment variable
// that overrides each control URL.
var actuatorEnv = map[string]struct{ env, def string }{
	"cooling":       {"AC_ENDPOINT", "http://192.168.0.101:5001/control"},
	"heating":       {"HEATER_ENDPOINT", "http://192.168.0.102:5001/control"},
	"ventilation":   {"VENT_ENDPOINT", "http://192.168.0.103:5001/control"},
	"light":         {"LIGHT_ENDPOINT", "http://192.168.0.104:5001/control"},
	"alarm":         {"ALARM_ENDPOINT", "http://192.168.0.105:5001/control"},
	"led":           {"LED_ENDPOINT", "http://led-controller:5002/control"},
	"vent_actuator": {"MOTOR_ENDPOINT", "http://motor-controller:5003/control"},
}

// Load reads and parses the configuration file.
// A missing file is not an error: defaults and environment variables are used instead.
// Keys present in the file override the defaults, including explicit zeros.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	fillRequired(cfg)
	return cfg, nil
}

// defaults returns the configuration used for every key the file leaves out
func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 5000},
		Database: DatabaseConfig{Path: "./roomd.sqlite"},
		Log:      LogConfig{Level: "info"},
		Engine: EngineConfig{
			TickInterval: Duration(5 * time.Second),
			CO2Debounce:  Duration(5 * time.Second),
		},
		Dispatch: DispatchConfig{
			Timeout:      Duration(5 * time.Second),
			RateLimitRPS: 10.0,
		},
		// Threshold defaults honour the variables the sensor nodes were deployed with
		Thresholds: ThresholdsConfig{
			TempHigh:      envFloat("TEMP_HIGH", 28.0),
			TempLow:       envFloat("TEMP_LOW", 18.0),
			HumidityHigh:  envFloat("HUMIDITY_HIGH", 70.0),
			CO2High:       envFloat("CO2_HIGH", 1000.0),
			NoiseHigh:     envFloat("NOISE_HIGH", 70.0),
			MotionTimeout: envFloat("MOTION_TIMEOUT", 300),
		},
		History: HistoryConfig{
			CleanupInterval: Duration(24 * time.Hour),
			RetentionDays:   30,
		},
		MQTT: MQTTConfig{
			ClientID: "roomd",
			Topic:    "roomd/control/events",
		},
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// fillRequired restores defaults for settings where an empty or zero value
// cannot work, such as a zero tick interval or an actuator without a URL.
func fillRequired(cfg *Config) {
	d := defaults()

	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = d.Database.Path
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Engine.TickInterval <= 0 {
		cfg.Engine.TickInterval = d.Engine.TickInterval
	}
	if cfg.Engine.CO2Debounce < 0 {
		cfg.Engine.CO2Debounce = d.Engine.CO2Debounce
	}
	if cfg.Dispatch.Timeout <= 0 {
		cfg.Dispatch.Timeout = d.Dispatch.Timeout
	}
	if cfg.Dispatch.RateLimitRPS <= 0 {
		cfg.Dispatch.RateLimitRPS = d.Dispatch.RateLimitRPS
	}
	if cfg.History.CleanupInterval <= 0 {
		cfg.History.CleanupInterval = d.History.CleanupInterval
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = d.MQTT.ClientID
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = d.MQTT.Topic
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}

	// Actuator endpoints: config wins, then env, then the built-in address
	if cfg.Actuators == nil {
		cfg.Actuators = make(map[string]string)
	}
	for device, e := range actuatorEnv {
		if cfg.Actuators[device] != "" {
			continue
		}
		if v := os.Getenv(e.env); v != "" {
			cfg.Actuators[device] = v
		} else {
			cfg.Actuators[device] = e.def
		}
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// envFloat reads a float from the environment, falling back to def when unset or malformed
func envFloat(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
