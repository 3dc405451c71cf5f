package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
sync:
  root_prefix: "office"
  default_room: "room1"
api:
  host: "0.0.0.0"
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	if cfg.Sync.DefaultRoom != "room1" {
		t.Errorf("Sync.DefaultRoom = %q, want %q", cfg.Sync.DefaultRoom, "room1")
	}

	// Values absent from the file keep their defaults.
	if cfg.Sync.SeriesCapacity != 30 {
		t.Errorf("Sync.SeriesCapacity = %d, want 30", cfg.Sync.SeriesCapacity)
	}
	if cfg.Sync.LogCapacity != 200 {
		t.Errorf("Sync.LogCapacity = %d, want 200", cfg.Sync.LogCapacity)
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load("../../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.Sync.RootPrefix != "office" || cfg.Sync.DefaultRoom != "room1" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if len(cfg.Sync.SensorKinds) != 4 {
		t.Errorf("SensorKinds = %v, want 4 kinds", cfg.Sync.SensorKinds)
	}
	if cfg.InfluxDB.Enabled {
		t.Error("sample config should ship with influxdb disabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
sync:
  root_prefix: "office/floor1"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for multi-segment root prefix, got nil")
	}
}

func TestLoadUnvalidated_SkipsValidation(t *testing.T) {
	content := `
mqtt:
  broker:
    port: 0
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadUnvalidated(configPath)
	if err != nil {
		t.Fatalf("LoadUnvalidated() error = %v", err)
	}
	if cfg.MQTT.Broker.Port != 0 {
		t.Errorf("MQTT.Broker.Port = %d, want 0", cfg.MQTT.Broker.Port)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for port 0, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name: "url replaces host and port",
			mutate: func(c *Config) {
				c.MQTT.Broker.URL = "ws://broker:9001"
				c.MQTT.Broker.Host = ""
				c.MQTT.Broker.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.MQTT.Reconnect.InitialDelay = -1 },
			wantErr: true,
		},
		{
			name:    "missing root prefix",
			mutate:  func(c *Config) { c.Sync.RootPrefix = "" },
			wantErr: true,
		},
		{
			name:    "wildcard root prefix",
			mutate:  func(c *Config) { c.Sync.RootPrefix = "office/#" },
			wantErr: true,
		},
		{
			name:    "wildcard default room",
			mutate:  func(c *Config) { c.Sync.DefaultRoom = "+" },
			wantErr: true,
		},
		{
			name:    "zero series capacity",
			mutate:  func(c *Config) { c.Sync.SeriesCapacity = 0 },
			wantErr: true,
		},
		{
			name:    "zero log capacity",
			mutate:  func(c *Config) { c.Sync.LogCapacity = 0 },
			wantErr: true,
		},
		{
			name:    "api port ignored when disabled",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "api port checked when enabled",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Reconnect: MQTTReconnectConfig{InitialDelay: 7},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}

	if got := cfg.GetReconnectDelay().Seconds(); got != 7 {
		t.Errorf("GetReconnectDelay() = %v, want 7", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ROOMSYNC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ROOMSYNC_MQTT_PORT", "8883")
	t.Setenv("ROOMSYNC_MQTT_CLIENT_ID", "dashboard-7")
	t.Setenv("ROOMSYNC_MQTT_USERNAME", "smartoffice")
	t.Setenv("ROOMSYNC_MQTT_PASSWORD", "smartoffice123")
	t.Setenv("ROOMSYNC_SYNC_ROOT_PREFIX", "campus")
	t.Setenv("ROOMSYNC_SYNC_DEFAULT_ROOM", "lab")
	t.Setenv("ROOMSYNC_API_HOST", "192.168.1.1")
	t.Setenv("ROOMSYNC_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "dashboard-7" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "dashboard-7")
	}
	if cfg.MQTT.Auth.Username != "smartoffice" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "smartoffice")
	}
	if cfg.MQTT.Auth.Password != "smartoffice123" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "smartoffice123")
	}
	if cfg.Sync.RootPrefix != "campus" {
		t.Errorf("Sync.RootPrefix = %q, want %q", cfg.Sync.RootPrefix, "campus")
	}
	if cfg.Sync.DefaultRoom != "lab" {
		t.Errorf("Sync.DefaultRoom = %q, want %q", cfg.Sync.DefaultRoom, "lab")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ROOMSYNC_MQTT_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Sync.RootPrefix == "" {
		t.Error("defaultConfig should have non-empty Sync.RootPrefix")
	}

	want := []string{"temperature", "humidity", "co2", "tvoc"}
	if len(cfg.Sync.SensorKinds) != len(want) {
		t.Fatalf("defaultConfig Sync.SensorKinds = %v, want %v", cfg.Sync.SensorKinds, want)
	}
	for i, kind := range want {
		if cfg.Sync.SensorKinds[i] != kind {
			t.Errorf("SensorKinds[%d] = %q, want %q", i, cfg.Sync.SensorKinds[i], kind)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig Validate() error = %v", err)
	}
}
