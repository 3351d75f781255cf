package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for sqlitestore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Databases  map[string]DatabaseConfig `yaml:"databases"`
	SQLite     SQLiteConfig              `yaml:"sqlite"`
	Migrations MigrationsConfig          `yaml:"migrations"`
	MQTT       MQTTConfig                `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig            `yaml:"influxdb"`
	Logging    LoggingConfig             `yaml:"logging"`
}

// DatabaseConfig describes one logical database, keyed by its name in
// Config.Databases.
type DatabaseConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// Default marks the database used when a command names none.
	Default bool `yaml:"default"`

	// Create creates the file on first open instead of treating it as missing.
	Create bool `yaml:"create"`

	// Attachments maps schema alias to the key of another configured
	// database, attached whenever this one is opened.
	Attachments map[string]string `yaml:"attachments"`
}

// SQLiteConfig contains engine settings shared by every connection.
type SQLiteConfig struct {
	// BusyTimeout is how long to wait on a locked database, in seconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// MigrationsConfig contains migration runner settings.
type MigrationsConfig struct {
	// Manifest is the manifest file. Empty uses the embedded default.
	Manifest string `yaml:"manifest"`

	// Strict makes the migrate command exit non-zero when any step failed.
	Strict bool `yaml:"strict"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SQLITESTORE_SECTION_KEY
// For example: SQLITESTORE_MANIFEST, SQLITESTORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // Config path is chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Databases: map[string]DatabaseConfig{},
		SQLite: SQLiteConfig{
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sqlitestore",
			},
			QoS:         1,
			TopicPrefix: "sqlitestore",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SQLITESTORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Migrations
	if v := os.Getenv("SQLITESTORE_MANIFEST"); v != "" {
		cfg.Migrations.Manifest = v
	}

	// MQTT
	if v := os.Getenv("SQLITESTORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SQLITESTORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SQLITESTORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SQLITESTORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SQLITESTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem is collected so a broken file can be fixed in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation, in key order for stable messages
	var defaults []string
	for _, key := range c.DatabaseKeys() {
		db := c.Databases[key]
		if strings.TrimSpace(key) == "" {
			errs = append(errs, "databases: key must not be empty")
		}
		if db.Path == "" {
			errs = append(errs, fmt.Sprintf("databases.%s.path is required", key))
		}
		if db.Default {
			defaults = append(defaults, key)
		}
		for alias, target := range db.Attachments {
			switch {
			case alias == "" || strings.EqualFold(alias, "main") || strings.EqualFold(alias, "temp"):
				errs = append(errs, fmt.Sprintf("databases.%s.attachments: alias %q is reserved", key, alias))
			case target == key:
				errs = append(errs, fmt.Sprintf("databases.%s.attachments.%s: database cannot attach itself", key, alias))
			default:
				if _, ok := c.Databases[target]; !ok {
					errs = append(errs, fmt.Sprintf("databases.%s.attachments.%s: unknown database %q", key, alias, target))
				}
			}
		}
	}
	if len(defaults) > 1 {
		errs = append(errs, fmt.Sprintf("databases: only one default allowed, got %s", strings.Join(defaults, ", ")))
	}

	// SQLite validation
	if c.SQLite.BusyTimeout < 0 {
		errs = append(errs, "sqlite.busy_timeout must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DatabaseKeys returns the configured database keys in sorted order.
func (c *Config) DatabaseKeys() []string {
	keys := make([]string, 0, len(c.Databases))
	for key := range c.Databases {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GetBusyTimeout returns the SQLite busy timeout as a Duration.
func (c *Config) GetBusyTimeout() time.Duration {
	return time.Duration(c.SQLite.BusyTimeout) * time.Second
}
