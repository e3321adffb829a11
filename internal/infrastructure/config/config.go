package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for shadecore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Security    SecurityConfig    `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// DispatchConfig contains timing settings for the command dispatcher.
//
// All durations are plain Go duration strings in YAML (e.g. "650ms", "12s").
// The invariant WarnAfter < KillAfter < HardDeadline is enforced by Validate;
// it keeps the per-task deadline and the reaper from racing each other.
type DispatchConfig struct {
	// RetryOffsets are the transmission offsets for a single shade command,
	// relative to sequence start. The first entry should be zero.
	RetryOffsets []time.Duration `yaml:"retry_offsets"`

	// InterCommandDelay is the default gap between commands inside one
	// scene cycle.
	InterCommandDelay time.Duration `yaml:"inter_command_delay"`

	// InterCycleDelay is the default gap between scene cycles.
	InterCycleDelay time.Duration `yaml:"inter_cycle_delay"`

	// HardDeadline is the outer per-sequence deadline.
	HardDeadline time.Duration `yaml:"hard_deadline"`

	// ReaperInterval is how often the zombie reaper scans active tasks.
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// WarnAfter is the age at which a task is flagged as a suspected zombie.
	WarnAfter time.Duration `yaml:"warn_after"`

	// KillAfter is the age at which a task is force-cancelled.
	KillAfter time.Duration `yaml:"kill_after"`

	// CancelledHistory is how many recently cancelled task IDs to retain
	// for diagnostics.
	CancelledHistory int `yaml:"cancelled_history"`
}

// TransmitterConfig contains RF bridge transmitter settings.
type TransmitterConfig struct {
	// AckTimeout is the per-transmission timeout. The RF bridge must
	// acknowledge (or the publish must complete) within this window.
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

// UnmarshalYAML decodes dispatch timings from duration strings ("650ms",
// "10s"). Fields absent from the YAML keep their existing values.
func (d *DispatchConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RetryOffsets      []string `yaml:"retry_offsets"`
		InterCommandDelay string   `yaml:"inter_command_delay"`
		InterCycleDelay   string   `yaml:"inter_cycle_delay"`
		HardDeadline      string   `yaml:"hard_deadline"`
		ReaperInterval    string   `yaml:"reaper_interval"`
		WarnAfter         string   `yaml:"warn_after"`
		KillAfter         string   `yaml:"kill_after"`
		CancelledHistory  *int     `yaml:"cancelled_history"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.RetryOffsets != nil {
		offsets := make([]time.Duration, 0, len(raw.RetryOffsets))
		for _, s := range raw.RetryOffsets {
			dur, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("dispatch.retry_offsets: %w", err)
			}
			offsets = append(offsets, dur)
		}
		d.RetryOffsets = offsets
	}

	fields := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"inter_command_delay", raw.InterCommandDelay, &d.InterCommandDelay},
		{"inter_cycle_delay", raw.InterCycleDelay, &d.InterCycleDelay},
		{"hard_deadline", raw.HardDeadline, &d.HardDeadline},
		{"reaper_interval", raw.ReaperInterval, &d.ReaperInterval},
		{"warn_after", raw.WarnAfter, &d.WarnAfter},
		{"kill_after", raw.KillAfter, &d.KillAfter},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		dur, err := time.ParseDuration(f.src)
		if err != nil {
			return fmt.Errorf("dispatch.%s: %w", f.name, err)
		}
		*f.dst = dur
	}

	if raw.CancelledHistory != nil {
		d.CancelledHistory = *raw.CancelledHistory
	}
	return nil
}

// UnmarshalYAML decodes the ack timeout from a duration string ("50ms").
func (t *TransmitterConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AckTimeout string `yaml:"ack_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.AckTimeout != "" {
		dur, err := time.ParseDuration(raw.AckTimeout)
		if err != nil {
			return fmt.Errorf("transmitter.ack_timeout: %w", err)
		}
		t.AckTimeout = dur
	}
	return nil
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// APIToken is the static bearer token for mutating API endpoints.
	// Empty disables token checks (development only).
	APIToken string `yaml:"api_token"`

	// TicketSecret signs short-lived WebSocket tickets (HS256).
	TicketSecret string `yaml:"ticket_secret"`

	// TicketTTL is the WebSocket ticket lifetime in seconds.
	TicketTTL int `yaml:"ticket_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHADECORE_SECTION_KEY
// For example: SHADECORE_DATABASE_PATH, SHADECORE_MQTT_HOST
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

// defaultConfig returns a Config with sensible defaults.
//
// The retry offsets encode the RF link characteristics: one transmission
// occupies roughly 750ms of airtime, so the first retry clears that window
// and later retries add margin for flaky receivers.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "shadecore",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/shadecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shadecore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Dispatch: DispatchConfig{
			RetryOffsets: []time.Duration{
				0,
				650 * time.Millisecond,
				1500 * time.Millisecond,
				2500 * time.Millisecond,
			},
			InterCommandDelay: 750 * time.Millisecond,
			InterCycleDelay:   2 * time.Second,
			HardDeadline:      10 * time.Second,
			ReaperInterval:    60 * time.Second,
			WarnAfter:         8 * time.Second,
			KillAfter:         12 * time.Second,
			CancelledHistory:  50,
		},
		Transmitter: TransmitterConfig{
			AckTimeout: 50 * time.Millisecond,
		},
		Security: SecurityConfig{
			TicketTTL: 60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHADECORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SHADECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SHADECORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHADECORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SHADECORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHADECORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SHADECORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SHADECORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SHADECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("SHADECORE_API_TOKEN"); v != "" {
		cfg.Security.APIToken = v
	}
	if v := os.Getenv("SHADECORE_TICKET_SECRET"); v != "" {
		cfg.Security.TicketSecret = v
	}
}

// Validate checks the configuration for errors.
//
// Beyond the usual required-field checks, it enforces the dispatch timing
// ordering warn_after < kill_after so that a stuck sequence is always
// warned about before the reaper removes it.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(c.Dispatch.RetryOffsets) == 0 {
		errs = append(errs, "dispatch.retry_offsets must have at least one entry")
	}
	for i := 1; i < len(c.Dispatch.RetryOffsets); i++ {
		if c.Dispatch.RetryOffsets[i] <= c.Dispatch.RetryOffsets[i-1] {
			errs = append(errs, "dispatch.retry_offsets must be strictly increasing")
			break
		}
	}
	if c.Dispatch.WarnAfter <= 0 || c.Dispatch.KillAfter <= 0 || c.Dispatch.HardDeadline <= 0 {
		errs = append(errs, "dispatch.warn_after, dispatch.kill_after, and dispatch.hard_deadline must be positive")
	} else if c.Dispatch.WarnAfter >= c.Dispatch.KillAfter {
		// The reaper kill is the backstop for sequences that escaped their
		// context deadline, so kill_after sits beyond hard_deadline.
		errs = append(errs, "dispatch timings must satisfy warn_after < kill_after")
	}
	if c.Dispatch.ReaperInterval <= 0 {
		errs = append(errs, "dispatch.reaper_interval must be positive")
	}

	if c.Transmitter.AckTimeout <= 0 {
		errs = append(errs, "transmitter.ack_timeout must be positive")
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
