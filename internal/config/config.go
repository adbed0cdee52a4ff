package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationError reports a rejected configuration value. Returned
// synchronously before a session starts; a session with an invalid config
// never begins polling.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Config holds the full monitor configuration. Validated once at session
// start and immutable for the session's lifetime.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Poll   PollConfig   `yaml:"poll"`
	Server ServerConfig `yaml:"server"`
}

// StoreConfig describes the record store being monitored.
type StoreConfig struct {
	// Endpoint is host or host:port of the store.
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table" default:"archives"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
	// QueryTimeoutSeconds bounds each probe's time on the wire.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" default:"5"`
}

// PollConfig controls the sampling cadence.
type PollConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" default:"10"`
	EventBuffer     int `yaml:"event_buffer" default:"64"`
}

// ServerConfig configures the HTTP status endpoint.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" default:":9310"`
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.Store.Table == "" {
		c.Store.Table = "archives"
	}
	if c.Store.SSLMode == "" {
		c.Store.SSLMode = "disable"
	}
	if c.Store.QueryTimeoutSeconds == 0 {
		c.Store.QueryTimeoutSeconds = 5
	}
	if c.Poll.IntervalSeconds == 0 {
		c.Poll.IntervalSeconds = 10
	}
	if c.Poll.EventBuffer == 0 {
		c.Poll.EventBuffer = 64
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":9310"
	}
}

// Validate checks the configuration. All errors are *ValidationError.
func (c *Config) Validate() error {
	if c.Store.Endpoint == "" {
		return &ValidationError{Field: "store.endpoint", Reason: "is required"}
	}
	if c.Store.Database == "" {
		return &ValidationError{Field: "store.database", Reason: "is required"}
	}
	if c.Store.QueryTimeoutSeconds <= 0 {
		return &ValidationError{Field: "store.query_timeout_seconds", Reason: "must be a positive integer"}
	}
	if c.Poll.IntervalSeconds <= 0 {
		return &ValidationError{Field: "poll.interval_seconds", Reason: "must be a positive integer"}
	}
	if c.Poll.EventBuffer <= 0 {
		return &ValidationError{Field: "poll.event_buffer", Reason: "must be a positive integer"}
	}
	return nil
}

// Interval returns the poll interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// QueryTimeout returns the per-probe query timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Store.QueryTimeoutSeconds) * time.Second
}

// ParseInterval parses an operator-supplied interval string into whole
// seconds. Non-numeric or non-positive input is a *ValidationError.
func ParseInterval(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "poll.interval_seconds", Reason: "must be a positive integer"}
	}
	return n, nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromEnv applies environment overrides. Interval parsing failures are
// returned rather than silently ignored so a typo never downgrades to the
// default cadence.
func LoadFromEnv(cfg *Config) error {
	if ep := os.Getenv("MIGWATCH_STORE_ENDPOINT"); ep != "" {
		cfg.Store.Endpoint = ep
	}
	if db := os.Getenv("MIGWATCH_STORE_DB"); db != "" {
		cfg.Store.Database = db
	}
	if user := os.Getenv("MIGWATCH_STORE_USER"); user != "" {
		cfg.Store.User = user
	}
	if pw := os.Getenv("MIGWATCH_STORE_PASSWORD"); pw != "" {
		cfg.Store.Password = pw
	}
	if table := os.Getenv("MIGWATCH_STORE_TABLE"); table != "" {
		cfg.Store.Table = table
	}
	if iv := os.Getenv("MIGWATCH_POLL_INTERVAL"); iv != "" {
		n, err := ParseInterval(iv)
		if err != nil {
			return err
		}
		cfg.Poll.IntervalSeconds = n
	}
	if addr := os.Getenv("MIGWATCH_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	return nil
}

// GetEnvOrDefault returns an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
