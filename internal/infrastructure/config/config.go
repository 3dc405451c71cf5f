package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Room Sync Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Sync      SyncConfig      `yaml:"sync"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
//
// URL, when set, replaces Host/Port/TLS and may use any scheme paho
// understands (tcp, ssl, ws, wss).
type MQTTBrokerConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains the application-level reconnect policy.
//
// The sync engine never reconnects on its own. cmd/roomsync reads these
// values to decide whether (and how long) to wait before dialling again.
// InitialDelay of 0 disables reconnection.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// SyncConfig contains settings for the state synchronisation engine.
type SyncConfig struct {
	// RootPrefix is the first topic segment of every room topic.
	RootPrefix string `yaml:"root_prefix"`

	// DefaultRoom is subscribed as soon as the engine starts. Empty means none.
	DefaultRoom string `yaml:"default_room"`

	// SensorKinds lists the payload keys that feed the sensor series.
	SensorKinds []string `yaml:"sensor_kinds"`

	// SeriesCapacity is the number of samples retained per sensor kind.
	SeriesCapacity int `yaml:"series_capacity"`

	// LogCapacity is the number of raw messages retained in the message log.
	LogCapacity int `yaml:"log_capacity"`

	// EventBuffer is the size of the engine's inbound event queue.
	EventBuffer int `yaml:"event_buffer"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROOMSYNC_SECTION_KEY
// For example: ROOMSYNC_MQTT_HOST, ROOMSYNC_SYNC_ROOT_PREFIX
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate, for callers that
// apply their own overrides (command-line flags) before validating.
func LoadUnvalidated(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no configuration file exists (e.g. the pub/sub tool modes).
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Sync: SyncConfig{
			RootPrefix:     "office",
			SensorKinds:    []string{"temperature", "humidity", "co2", "tvoc"},
			SeriesCapacity: 30,
			LogCapacity:    200,
			EventBuffer:    256,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROOMSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("ROOMSYNC_MQTT_URL"); v != "" {
		cfg.MQTT.Broker.URL = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ROOMSYNC_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Sync
	if v := os.Getenv("ROOMSYNC_SYNC_ROOT_PREFIX"); v != "" {
		cfg.Sync.RootPrefix = v
	}
	if v := os.Getenv("ROOMSYNC_SYNC_DEFAULT_ROOM"); v != "" {
		cfg.Sync.DefaultRoom = v
	}

	// API
	if v := os.Getenv("ROOMSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ROOMSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.URL == "" {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay cannot be negative")
	}

	// Sync validation
	if c.Sync.RootPrefix == "" {
		errs = append(errs, "sync.root_prefix is required")
	} else if strings.ContainsAny(c.Sync.RootPrefix, "/+#") {
		errs = append(errs, "sync.root_prefix must be a single topic segment without wildcards")
	}
	if strings.ContainsAny(c.Sync.DefaultRoom, "/+#") {
		errs = append(errs, "sync.default_room must be a single topic segment without wildcards")
	}
	if c.Sync.SeriesCapacity < 1 {
		errs = append(errs, "sync.series_capacity must be at least 1")
	}
	if c.Sync.LogCapacity < 1 {
		errs = append(errs, "sync.log_capacity must be at least 1")
	}
	if c.Sync.EventBuffer < 1 {
		errs = append(errs, "sync.event_buffer must be at least 1")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetReconnectDelay returns the delay before redialling the broker.
// Zero means the application should not reconnect.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second
}
