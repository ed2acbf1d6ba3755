package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
mqtt:
  broker:
    host: "broker.example.com"
    port: 8883
    tls: true
    client_id: "test-client"
  qos: 2
  ack_mode: "manual"
  subscriptions:
    - topic: "sensors/#"
      qos: 1
buffer:
  enabled: true
  max_messages: 50
  drop_oldest: false
store:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  enabled: true
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

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}

	if cfg.MQTT.AckMode != AckModeManual {
		t.Errorf("MQTT.AckMode = %q, want %q", cfg.MQTT.AckMode, AckModeManual)
	}

	if len(cfg.MQTT.Subscriptions) != 1 || cfg.MQTT.Subscriptions[0].Topic != "sensors/#" {
		t.Errorf("MQTT.Subscriptions = %+v, want one entry for sensors/#", cfg.MQTT.Subscriptions)
	}

	if cfg.Buffer.MaxMessages != 50 {
		t.Errorf("Buffer.MaxMessages = %d, want 50", cfg.Buffer.MaxMessages)
	}

	if cfg.Buffer.DropOldest {
		t.Error("Buffer.DropOldest = true, want false (overridden by file)")
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
mqtt:
  qos: 3
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for qos=3, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid ack mode",
			mutate:  func(c *Config) { c.MQTT.AckMode = "sometimes" },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "buffer enabled with zero capacity",
			mutate:  func(c *Config) { c.Buffer.MaxMessages = 0 },
			wantErr: true,
		},
		{
			name: "persist without store path",
			mutate: func(c *Config) {
				c.Buffer.Persist = true
				c.Store.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "subscription without topic",
			mutate:  func(c *Config) { c.MQTT.Subscriptions = []SubscriptionSpec{{Topic: "", QoS: 1}} },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name: "API disabled ignores port",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
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
		MQTT: MQTTConfig{
			ConnectTimeout: 10,
			QuiesceMillis:  1500,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetConnectTimeout().Seconds(); got != 10 {
		t.Errorf("GetConnectTimeout() = %v, want 10", got)
	}

	if got := cfg.GetQuiesce().Milliseconds(); got != 1500 {
		t.Errorf("GetQuiesce() = %v, want 1500", got)
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
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("MQTTBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MQTTBRIDGE_MQTT_PORT", "8883")
	t.Setenv("MQTTBRIDGE_MQTT_CLIENT_ID", "env-client")
	t.Setenv("MQTTBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("MQTTBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("MQTTBRIDGE_STORE_PATH", "/custom/path.db")
	t.Setenv("MQTTBRIDGE_API_HOST", "192.168.1.1")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Broker.ClientID != "env-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "env-client")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Store.Path != "/custom/path.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MQTTBRIDGE_MQTT_PORT", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883 for unparsable override", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.AckMode != AckModeAuto {
		t.Errorf("defaultConfig MQTT.AckMode = %q, want %q", cfg.MQTT.AckMode, AckModeAuto)
	}

	if !cfg.Buffer.Enabled {
		t.Error("defaultConfig should enable buffering")
	}

	if cfg.Store.Path == "" {
		t.Error("defaultConfig should have non-empty Store.Path")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate cleanly, got %v", err)
	}
}
