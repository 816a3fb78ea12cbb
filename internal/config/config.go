package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSurreal = "surreal"
	DriverMemory  = "memory"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultQueryTimeout      = 5 * time.Second
	DefaultExecuteTimeout    = 10 * time.Second
	DefaultPresenceHeartbeat = 15 * time.Second
	DefaultPresenceWindow    = 30 * time.Second
	DefaultTypingIdle        = 3 * time.Second
	DefaultTracingService    = "classhub"
	DefaultZipkinURL         = "http://localhost:9411/api/v2/spans"
)

// Provider is the read-only view of the configuration that services depend on.
type Provider interface {
	GetStoreDriver() string
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
	GetPresenceHeartbeat() time.Duration
	GetPresenceWindow() time.Duration
	GetTypingIdle() time.Duration
	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetZipkinURL() string
	GetMetricsAddr() string
}

// Config holds all configuration for the application.
type Config struct {
	StoreDriver string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	PresenceHeartbeat time.Duration
	PresenceWindow    time.Duration
	TypingIdle        time.Duration

	TracingEnabled     bool
	TracingServiceName string
	ZipkinURL          string

	// MetricsAddr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string
}

var _ Provider = (*Config)(nil)

// New loads configuration from a .env file, if present, and the environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Unparseable durations fall
// back to their defaults with a warning.
func FromEnv(getenv func(string) string) *Config {
	driver := strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER")))
	if driver == "" {
		driver = DriverSurreal
	}
	return &Config{
		StoreDriver:       driver,
		DBUrl:             getenv("SURREAL_URL"),
		DBNs:              getenv("SURREAL_NS"),
		DBDb:              getenv("SURREAL_DB"),
		DBUser:            getenv("SURREAL_USER"),
		DBPass:            getenv("SURREAL_PASS"),
		DBQueryTimeout:    duration(getenv, "DB_QUERY_TIMEOUT", DefaultQueryTimeout),
		DBExecuteTimeout:  duration(getenv, "DB_EXECUTE_TIMEOUT", DefaultExecuteTimeout),
		PresenceHeartbeat: duration(getenv, "PRESENCE_HEARTBEAT", DefaultPresenceHeartbeat),
		PresenceWindow:    duration(getenv, "PRESENCE_WINDOW", DefaultPresenceWindow),
		TypingIdle:        duration(getenv, "TYPING_IDLE", DefaultTypingIdle),

		TracingEnabled:     boolean(getenv, "PUBSUB_TRACING_ENABLED"),
		TracingServiceName: orDefault(getenv("PUBSUB_TRACING_SERVICE_NAME"), DefaultTracingService),
		ZipkinURL:          orDefault(getenv("PUBSUB_TRACING_ZIPKIN_URL"), DefaultZipkinURL),
		MetricsAddr:        strings.TrimSpace(getenv("METRICS_ADDR")),
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func boolean(getenv func(string) string, key string) bool {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using false", "key", key, "value", raw)
		return false
	}
	return b
}

func duration(getenv func(string) string, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSurreal:
		if c.DBUrl == "" {
			errs = append(errs, errors.New("SURREAL_URL is required"))
		}
		if c.DBNs == "" {
			errs = append(errs, errors.New("SURREAL_NS is required"))
		}
		if c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_DB is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.PresenceHeartbeat >= c.PresenceWindow {
		errs = append(errs, fmt.Errorf("PRESENCE_HEARTBEAT (%s) must be shorter than PRESENCE_WINDOW (%s)", c.PresenceHeartbeat, c.PresenceWindow))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) GetStoreDriver() string              { return c.StoreDriver }
func (c *Config) GetDBURL() string                    { return c.DBUrl }
func (c *Config) GetDBNs() string                     { return c.DBNs }
func (c *Config) GetDBDb() string                     { return c.DBDb }
func (c *Config) GetDBUser() string                   { return c.DBUser }
func (c *Config) GetDBPass() string                   { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration    { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration  { return c.DBExecuteTimeout }
func (c *Config) GetPresenceHeartbeat() time.Duration { return c.PresenceHeartbeat }
func (c *Config) GetPresenceWindow() time.Duration    { return c.PresenceWindow }
func (c *Config) GetTypingIdle() time.Duration        { return c.TypingIdle }
func (c *Config) GetTracingEnabled() bool             { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string       { return c.TracingServiceName }
func (c *Config) GetZipkinURL() string                { return c.ZipkinURL }
func (c *Config) GetMetricsAddr() string              { return c.MetricsAddr }
