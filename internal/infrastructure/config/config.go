package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/michalvitousek/miot/internal/relay"
)

// envPrefix is prepended to every environment variable override.
const envPrefix = "MIOT_"

// clientIDPrefix is used when generating a client identifier.
const clientIDPrefix = "miot.relay_"

// Connection-lost policies.
const (
	// PolicyExit releases the relay and terminates the process.
	PolicyExit = "exit"

	// PolicyReconnect lets the MQTT client reconnect with bounded backoff.
	PolicyReconnect = "reconnect"
)

// ErrInvalidConfig is wrapped by every validation failure (the ConfigError category).
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration structure for the relay agent.
// Values come from defaults, then YAML, then MIOT_* environment variables,
// then command-line options.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	Relay     RelayConfig     `yaml:"relay" envPrefix:"RELAY_"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" envPrefix:"LIFECYCLE_"`
	Journal   JournalConfig   `yaml:"journal" envPrefix:"JOURNAL_"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" envPrefix:"INFLUXDB_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	Topic        string              `yaml:"topic" env:"TOPIC"`
	QoS          int                 `yaml:"qos" env:"QOS"`
	CleanSession bool                `yaml:"clean_session" env:"CLEAN_SESSION"`
	StoreDir     string              `yaml:"store_dir" env:"STORE_DIR"`
	OnLost       string              `yaml:"on_connection_lost" env:"ON_CONNECTION_LOST"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	TLS      bool   `yaml:"tls" env:"TLS"`
	CAFile   string `yaml:"ca_file" env:"CA_FILE"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig bounds reconnection under the reconnect policy.
// Delays are in seconds. MaxAttempts 0 retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     int `yaml:"max_delay" env:"MAX_DELAY"`
	MaxAttempts  int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// RelayConfig selects the output pin and actuation mode.
type RelayConfig struct {
	Pin  string `yaml:"pin" env:"PIN"`
	Mode string `yaml:"mode" env:"MODE"`
}

// LifecycleConfig contains the control-file keep-alive settings.
// An empty ControlFile disables the watcher.
type LifecycleConfig struct {
	ControlFile  string `yaml:"control_file" env:"CONTROL_FILE"`
	PollInterval int    `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// JournalConfig contains SQLite actuation journal settings.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	Path          string `yaml:"path" env:"PATH"`
	WALMode       bool   `yaml:"wal_mode" env:"WAL_MODE"`
	BusyTimeout   int    `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
	RetentionDays int    `yaml:"retention_days" env:"RETENTION_DAYS"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	URL           string `yaml:"url" env:"URL"`
	Token         string `yaml:"token" env:"TOKEN"`
	Org           string `yaml:"org" env:"ORG"`
	Bucket        string `yaml:"bucket" env:"BUCKET"`
	BatchSize     int    `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval int    `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Host    string `yaml:"host" env:"HOST"`
	Port    int    `yaml:"port" env:"PORT"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// Option modifies a Config after file and environment values have been applied.
// The command-line layer uses it to overlay flags.
type Option func(*Config)

// Load builds the configuration and validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (MIOT_SECTION_KEY)
//  4. Options, in order
//
// A client identifier is generated afterwards if none was supplied.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//   - opts: Overlays applied after environment variables
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, or wrapping ErrInvalidConfig when the
//     file or environment cannot be parsed or validation fails
func Load(path string, opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %w", ErrInvalidConfig, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("%w: parsing environment: %w", ErrInvalidConfig, err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.EnsureClientID()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config populated with built-in defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "m2m.eclipse.org",
				Port: 1883,
			},
			QoS:          0,
			CleanSession: true,
			OnLost:       PolicyExit,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  10,
			},
		},
		Relay: RelayConfig{
			Mode: "simulated",
		},
		Lifecycle: LifecycleConfig{
			ControlFile:  "./controlFile.cf",
			PollInterval: 10,
		},
		Journal: JournalConfig{
			Enabled:       false,
			Path:          "./data/miot-relay.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// EnsureClientID generates a unique client identifier when none is set.
func (c *Config) EnsureClientID() {
	if strings.TrimSpace(c.MQTT.Broker.ClientID) == "" {
		c.MQTT.Broker.ClientID = clientIDPrefix + uuid.NewString()
	}
}

// Validate checks the configuration for errors.
//
// Every problem is collected so the operator sees them all at once.
//
// Returns:
//   - error: Wrapping ErrInvalidConfig, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1, or 2 (got %d)", c.MQTT.QoS))
	}
	if strings.TrimSpace(c.MQTT.Topic) == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	switch c.MQTT.OnLost {
	case PolicyExit, PolicyReconnect:
	default:
		errs = append(errs, fmt.Sprintf("mqtt.on_connection_lost must be %q or %q", PolicyExit, PolicyReconnect))
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 || c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect values must not be negative")
	}

	// Relay validation
	if strings.TrimSpace(c.Relay.Pin) == "" {
		errs = append(errs, "relay.pin is required")
	}
	if _, err := relay.ParseMode(c.Relay.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("relay.mode must be simulated or gpio (got %q)", c.Relay.Mode))
	}

	// Lifecycle validation
	if c.Lifecycle.ControlFile != "" && c.Lifecycle.PollInterval <= 0 {
		errs = append(errs, "lifecycle.poll_interval must be positive")
	}

	// Optional integrations
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the broker address as scheme://host:port.
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Broker.Host, c.Broker.Port)
}

// GetPollInterval returns the control-file poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Lifecycle.PollInterval) * time.Second
}

// GetRetention returns the journal retention window (0 keeps everything).
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}
