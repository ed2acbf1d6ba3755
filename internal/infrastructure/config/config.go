package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Acknowledgment modes for inbound messages.
const (
	// AckModeAuto acknowledges a message as soon as the arrival callback returns.
	AckModeAuto = "auto"

	// AckModeManual leaves acknowledgment to the application, which must call
	// AcknowledgeMessage with the identifier attached to the arrived message.
	AckModeManual = "manual"
)

// Config is the root configuration structure for mqttbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Store   StoreConfig   `yaml:"store"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains broker connection and client behaviour settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig   `yaml:"broker"`
	Auth           MQTTAuthConfig     `yaml:"auth"`
	Reconnect      ReconnectConfig    `yaml:"reconnect"`
	QoS            int                `yaml:"qos"`
	AckMode        string             `yaml:"ack_mode"`
	ConnectTimeout int                `yaml:"connect_timeout"`
	QuiesceMillis  int                `yaml:"quiesce_ms"`
	Subscriptions  []SubscriptionSpec `yaml:"subscriptions"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
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

// ReconnectConfig controls automatic reconnection backoff, in seconds.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SubscriptionSpec describes one topic filter the daemon subscribes to on connect.
type SubscriptionSpec struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// BufferConfig controls buffering of publishes issued while disconnected.
//
// Buffering only has an observable effect while the connection is down:
// while connected, publishes go straight to the broker.
type BufferConfig struct {
	// Enabled turns disconnected buffering on. When false, publishing while
	// disconnected fails immediately.
	Enabled bool `yaml:"enabled"`

	// MaxMessages is the maximum number of buffered publishes.
	MaxMessages int `yaml:"max_messages"`

	// DropOldest selects the eviction policy when the buffer is full:
	// true evicts the oldest buffered message, false rejects the new one.
	DropOldest bool `yaml:"drop_oldest"`

	// Persist writes buffered messages to the SQLite store so they survive
	// a process restart.
	Persist bool `yaml:"persist"`
}

// StoreConfig contains SQLite settings for the buffered-message store.
type StoreConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
// Environment variables follow the pattern: MQTTBRIDGE_SECTION_KEY
// For example: MQTTBRIDGE_MQTT_HOST, MQTTBRIDGE_STORE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Used by tests and by callers that wire everything programmatically.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mqttbridge",
			},
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			QoS:            1,
			AckMode:        AckModeAuto,
			ConnectTimeout: 10,
			QuiesceMillis:  1000,
		},
		Buffer: BufferConfig{
			Enabled:     true,
			MaxMessages: 100,
			DropOldest:  true,
		},
		Store: StoreConfig{
			Path:        "./data/mqttbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTTBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTTBRIDGE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MQTTBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Store
	if v := os.Getenv("MQTTBRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// API
	if v := os.Getenv("MQTTBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.AckMode != AckModeAuto && c.MQTT.AckMode != AckModeManual {
		errs = append(errs, `mqtt.ack_mode must be "auto" or "manual"`)
	}
	for _, sub := range c.MQTT.Subscriptions {
		if sub.Topic == "" {
			errs = append(errs, "mqtt.subscriptions entries require a topic")
		}
		if sub.QoS < 0 || sub.QoS > 2 {
			errs = append(errs, "mqtt.subscriptions qos must be 0, 1, or 2")
		}
	}

	if c.Buffer.Enabled && c.Buffer.MaxMessages < 1 {
		errs = append(errs, "buffer.max_messages must be at least 1 when buffering is enabled")
	}
	if c.Buffer.Persist && c.Store.Path == "" {
		errs = append(errs, "store.path is required when buffer.persist is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the initial connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetQuiesce returns the disconnect quiesce period as a Duration.
func (c *Config) GetQuiesce() time.Duration {
	return time.Duration(c.MQTT.QuiesceMillis) * time.Millisecond
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
