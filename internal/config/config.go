// Package config loads process configuration from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EnvProduction is the APP_ENV value that enables strict validation.
const EnvProduction = "production"

// EnvDevelopment is the default APP_ENV for local runs.
const EnvDevelopment = "development"

// Config is the full process configuration shared by cmd/api and cmd/worker.
type Config struct {
	App       AppConfig         `yaml:"app"`
	Engine    EngineConfig      `yaml:"engine"`
	Notify    NotifyConfig      `yaml:"notify"`
	Stream    StreamConfig      `yaml:"stream"`
	Auth      AuthConfig        `yaml:"auth"`
	Store     string            `yaml:"store"`
	Database  database.Config   `yaml:"database"`
	PubSub    PubSubConfig      `yaml:"pubsub"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	SMTP      notify.SMTPConfig `yaml:"smtp"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	// Default: 8080
	Port string `yaml:"port"`
	// Default: development
	Env string `yaml:"env"`
	// Default: info
	LogLevel string `yaml:"logLevel"`
}

// EngineConfig controls the scheduler and processor.
type EngineConfig struct {
	// Enabled runs the engine inside the API process.
	// Default: true
	Enabled bool `yaml:"enabled"`
	// Default: 10s
	TickInterval time.Duration `yaml:"tickInterval"`
	// Concurrency bounds checks per tick; 0 means unbounded.
	// Default: 0
	Concurrency int `yaml:"concurrency"`
	// Region is stamped on every check result.
	// Default: default
	Region string `yaml:"region"`
}

// NotifyConfig controls the dispatcher retry policy.
type NotifyConfig struct {
	// Default: 5s
	RetryDelay time.Duration `yaml:"retryDelay"`
	// Default: 1
	MaxRetries int `yaml:"maxRetries"`
}

// StreamConfig controls real-time connections.
type StreamConfig struct {
	// Default: 30s
	KeepAlive time.Duration `yaml:"keepAlive"`
	// AllowedOrigins applies to the public stream and WebSocket upgrades.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	SigningKey string `yaml:"signingKey"`
}

// PubSubConfig enables multi-process fan-out when ProjectID is set.
type PubSubConfig struct {
	ProjectID    string `yaml:"projectId"`
	Topic        string `yaml:"topic"`
	Subscription string `yaml:"subscription"`
	// TriggerSubscription receives on-demand check requests for the worker.
	TriggerSubscription string `yaml:"triggerSubscription"`
	TriggerTopic        string `yaml:"triggerTopic"`
}

// Enabled reports whether events should flow through Pub/Sub.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// ArchiveConfig enables the DynamoDB check archive when Table is set.
type ArchiveConfig struct {
	Table     string        `yaml:"table"`
	Region    string        `yaml:"region"`
	Retention time.Duration `yaml:"retention"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Default: localhost:4317
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// Load builds the configuration from defaults, the YAML file named by path
// (or CONFIG_FILE when path is empty), and environment overrides, then
// validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		App: AppConfig{
			Port:     "8080",
			Env:      EnvDevelopment,
			LogLevel: "info",
		},
		Engine: EngineConfig{
			Enabled:      true,
			TickInterval: 10 * time.Second,
			Region:       "default",
		},
		Notify: NotifyConfig{
			RetryDelay: 5 * time.Second,
			MaxRetries: 1,
		},
		Stream:   StreamConfig{KeepAlive: 30 * time.Second},
		Store:    StorePostgres,
		Database: database.DefaultConfig(),
		PubSub: PubSubConfig{
			Topic:               "pulsewatch-events",
			Subscription:        "pulsewatch-events-api",
			TriggerTopic:        "pulsewatch-checks",
			TriggerSubscription: "pulsewatch-checks-worker",
		},
		Archive:   ArchiveConfig{Retention: 90 * 24 * time.Hour},
		Telemetry: TelemetryConfig{OTLPEndpoint: "localhost:4317"},
		SMTP:      notify.SMTPConfig{Port: 587},
	}
}

// IsDevelopment reports whether local-only conveniences are enabled.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// IsProduction reports whether strict validation applies.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Validate reports the first setting that would prevent the process from
// starting correctly.
func (c *Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Engine.TickInterval)
	}
	if c.Engine.Concurrency < 0 {
		return fmt.Errorf("check concurrency must not be negative, got %d", c.Engine.Concurrency)
	}
	if c.Notify.RetryDelay < 0 {
		return fmt.Errorf("notify retry delay must not be negative, got %s", c.Notify.RetryDelay)
	}
	if c.Notify.MaxRetries < 0 {
		return fmt.Errorf("notify max retries must not be negative, got %d", c.Notify.MaxRetries)
	}
	if c.Stream.KeepAlive <= 0 {
		return fmt.Errorf("keep-alive interval must be positive, got %s", c.Stream.KeepAlive)
	}
	switch c.Store {
	case StorePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StorePostgres, StoreMemory)
	}
	if c.IsProduction() && c.Auth.SigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required in production")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return errors.New("PUBSUB_TOPIC is required when PUBSUB_PROJECT_ID is set")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.Engine.Region, "REGION")
	setString(&cfg.Auth.SigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Store, "STORE")
	setString(&cfg.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&cfg.PubSub.Topic, "PUBSUB_TOPIC")
	setString(&cfg.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")
	setString(&cfg.PubSub.TriggerTopic, "PUBSUB_TRIGGER_TOPIC")
	setString(&cfg.PubSub.TriggerSubscription, "PUBSUB_TRIGGER_SUBSCRIPTION")
	setString(&cfg.Archive.Table, "ARCHIVE_DYNAMODB_TABLE")
	setString(&cfg.Archive.Region, "AWS_REGION")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Stream.AllowedOrigins = splitList(v)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(setDuration(&cfg.Engine.TickInterval, "TICK_INTERVAL"))
	collect(setDuration(&cfg.Notify.RetryDelay, "NOTIFY_RETRY_DELAY"))
	collect(setDuration(&cfg.Stream.KeepAlive, "KEEPALIVE_INTERVAL"))
	collect(setDuration(&cfg.Archive.Retention, "ARCHIVE_RETENTION"))
	collect(setInt(&cfg.Engine.Concurrency, "CHECK_CONCURRENCY"))
	collect(setInt(&cfg.Notify.MaxRetries, "NOTIFY_MAX_RETRIES"))
	collect(setInt(&cfg.SMTP.Port, "SMTP_PORT"))
	collect(setBool(&cfg.Engine.Enabled, "ENGINE_ENABLED"))
	collect(setBool(&cfg.Telemetry.Enabled, "OTEL_ENABLED"))

	cfg.Database.ApplyEnv()
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
