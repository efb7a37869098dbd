// Package config loads runner configuration from YAML. It selects the state
// store and task queue backends, worker behavior, and logging, so a deployer
// can switch from the in-memory development setup to SQLite, Postgres,
// Redis, or MongoDB without code changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver names accepted by Store.Driver and Queue.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config is the root runner configuration.
type Config struct {
	Store   Store   `yaml:"store"`
	Queue   Queue   `yaml:"queue"`
	Worker  Worker  `yaml:"worker"`
	Logging Logging `yaml:"logging"`
}

// Store selects and configures the flow state store backend.
type Store struct {
	Driver string `yaml:"driver"`
	// DSN is the connection string for sqlite, postgres, and mongo drivers.
	DSN string `yaml:"dsn,omitempty"`
	// Addr is the host:port for the redis driver.
	Addr string `yaml:"addr,omitempty"`
	// Prefix namespaces redis keys. Defaults to "genflow:".
	Prefix string `yaml:"prefix,omitempty"`
	// Database is the database name for the mongo driver.
	Database string `yaml:"database,omitempty"`
}

// Queue selects and configures the task queue backend. An empty driver
// follows the store's driver so a single SQLite file or Redis instance can
// carry both.
type Queue struct {
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	Addr   string `yaml:"addr,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	// Capacity bounds the in-memory queue. Ignored by durable drivers.
	Capacity int `yaml:"capacity,omitempty"`
}

// Worker configures message processing.
type Worker struct {
	Concurrency int           `yaml:"concurrency"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

// Logging configures the zap logger.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is given: in-memory
// store and queue, one worker goroutine, info logging.
func Default() Config {
	return Config{
		Store: Store{Driver: DriverMemory},
		Queue: Queue{Capacity: 1024},
		Worker: Worker{
			Concurrency: 1,
			MaxAttempts: 3,
			Backoff:     100 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads and validates a YAML configuration file. Omitted fields keep
// their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and their required settings.
func (c *Config) Validate() error {
	if err := validateDriver("store", c.Store.Driver); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %q requires dsn", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.Addr == "" {
			return fmt.Errorf("store driver %q requires addr", c.Store.Driver)
		}
	}

	if c.Queue.Driver != "" {
		if err := validateDriver("queue", c.Queue.Driver); err != nil {
			return err
		}
		switch c.Queue.Driver {
		case DriverSQLite, DriverPostgres, DriverMongo:
			if c.Queue.DSN == "" && c.Store.DSN == "" {
				return fmt.Errorf("queue driver %q requires dsn", c.Queue.Driver)
			}
		case DriverRedis:
			if c.Queue.Addr == "" && c.Store.Addr == "" {
				return fmt.Errorf("queue driver %q requires addr", c.Queue.Driver)
			}
		}
	}

	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker concurrency must not be negative")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker maxAttempts must be at least 1")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	return nil
}

// QueueDriver resolves the effective queue driver, falling back to the
// store's driver.
func (c *Config) QueueDriver() string {
	if c.Queue.Driver != "" {
		return c.Queue.Driver
	}
	return c.Store.Driver
}

// QueueDSN resolves the effective queue DSN, falling back to the store's.
func (c *Config) QueueDSN() string {
	if c.Queue.DSN != "" {
		return c.Queue.DSN
	}
	return c.Store.DSN
}

// QueueAddr resolves the effective queue address, falling back to the
// store's.
func (c *Config) QueueAddr() string {
	if c.Queue.Addr != "" {
		return c.Queue.Addr
	}
	return c.Store.Addr
}

func validateDriver(kind, driver string) error {
	switch driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis, DriverMongo:
		return nil
	default:
		return fmt.Errorf("unknown %s driver %q", kind, driver)
	}
}
