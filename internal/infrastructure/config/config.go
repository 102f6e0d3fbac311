package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for remapd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   DevicesConfig   `yaml:"devices"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
//
// The broker is only contacted when Devices.MQTT.Enabled is set; devices
// bridged over MQTT are the only consumer of this section.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains editor HTTP API settings.
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
}

// WebSocketConfig contains editor event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for input telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// RecordInputs writes one point per delivered control value.
	RecordInputs bool `yaml:"record_inputs"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DevicesConfig selects which device providers are started.
type DevicesConfig struct {
	Memory MemoryProviderConfig `yaml:"memory"`
	MQTT   MQTTProviderConfig   `yaml:"mqtt"`
	HID    HIDProviderConfig    `yaml:"hid"`
}

// MemoryProviderConfig configures the in-process virtual device provider.
// Useful for development without hardware attached.
type MemoryProviderConfig struct {
	Enabled   bool `yaml:"enabled"`
	Keyboards int  `yaml:"keyboards"`
	Joysticks int  `yaml:"joysticks"`
}

// MQTTProviderConfig configures devices bridged over MQTT.
type MQTTProviderConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HIDProviderConfig configures raw HID joystick/gamepad access.
type HIDProviderConfig struct {
	Enabled     bool `yaml:"enabled"`
	ReadTimeout int  `yaml:"read_timeout_ms"`
}

// ProfilesConfig contains profile storage and import settings.
type ProfilesConfig struct {
	// ImportFile is an optional YAML snapshot loaded when the database is empty.
	ImportFile string `yaml:"import_file"`

	// Watch reloads ImportFile whenever it changes on disk.
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period in milliseconds before a reload.
	WatchDebounce int `yaml:"watch_debounce_ms"`

	// SaveOnExit persists unsaved edits during shutdown.
	SaveOnExit bool `yaml:"save_on_exit"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: REMAPD_SECTION_KEY
// For example: REMAPD_DATABASE_PATH, REMAPD_API_PORT
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

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/remapd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "remapd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8470,
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
			BatchSize:     500,
			FlushInterval: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			Memory: MemoryProviderConfig{
				Enabled:   true,
				Keyboards: 1,
				Joysticks: 1,
			},
			MQTT: MQTTProviderConfig{
				TopicPrefix: "remapd",
			},
			HID: HIDProviderConfig{
				ReadTimeout: 50,
			},
		},
		Profiles: ProfilesConfig{
			WatchDebounce: 250,
			SaveOnExit:    true,
		},
	}
}

// envOverride maps one REMAPD_* variable onto a config field.
type envOverride struct {
	name  string
	apply func(c *Config, v string)
}

func setString(field func(*Config) *string) func(*Config, string) {
	return func(c *Config, v string) { *field(c) = v }
}

// setInt ignores values that do not parse; Validate reports the result.
func setInt(field func(*Config) *int) func(*Config, string) {
	return func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(c) = n
		}
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) {
	return func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			*field(c) = b
		}
	}
}

// envOverrides lists every supported variable. Names follow
// REMAPD_SECTION_KEY.
var envOverrides = []envOverride{
	{"REMAPD_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},

	{"REMAPD_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"REMAPD_MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"REMAPD_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"REMAPD_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},

	{"REMAPD_API_ENABLED", setBool(func(c *Config) *bool { return &c.API.Enabled })},
	{"REMAPD_API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"REMAPD_API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},

	{"REMAPD_INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"REMAPD_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},

	{"REMAPD_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},

	{"REMAPD_DEVICES_MQTT_ENABLED", setBool(func(c *Config) *bool { return &c.Devices.MQTT.Enabled })},
	{"REMAPD_DEVICES_HID_ENABLED", setBool(func(c *Config) *bool { return &c.Devices.HID.Enabled })},

	{"REMAPD_PROFILES_IMPORT_FILE", setString(func(c *Config) *string { return &c.Profiles.ImportFile })},
}

// applyEnvOverrides applies every set REMAPD_* variable to cfg.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(cfg, v)
		}
	}
}

// Validate checks the configuration and reports every problem at once.
// The returned error joins one error per problem.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Database.Path == "", "database.path is required")
	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	check(c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535), "api.port must be between 1 and 65535")
	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")
	check(c.Devices.MQTT.Enabled && c.Devices.MQTT.TopicPrefix == "",
		"devices.mqtt.topic_prefix is required when the mqtt provider is enabled")
	check(c.Devices.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535),
		"mqtt.broker.port must be between 1 and 65535")
	check(c.Profiles.Watch && c.Profiles.ImportFile == "", "profiles.watch requires profiles.import_file")
	check(c.Profiles.WatchDebounce < 0, "profiles.watch_debounce_ms must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
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

// GetWatchDebounce returns the import file reload debounce as a Duration.
func (c *Config) GetWatchDebounce() time.Duration {
	return time.Duration(c.Profiles.WatchDebounce) * time.Millisecond
}
