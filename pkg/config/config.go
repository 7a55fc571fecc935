// Package config loads application configuration through Viper.
// Values come from an optional config file and are overridden by environment
// variables prefixed with ALMACEN_ (dots become underscores: db.url -> ALMACEN_DB_URL).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ALMACEN"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config groups all application settings.
type Config struct {
	App     AppConfig
	Log     LogConfig
	DB      DBConfig
	HTTP    HTTPConfig
	JWT     JWTConfig
	Storage StorageConfig
	Worker  WorkerConfig
	Policy  PolicyConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Name string
	Env  string // development, staging, production
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool { return c.Env == "development" }

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	Migrate          bool
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds token validation settings.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string
}

// WorkerConfig holds outbox relay settings.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	WebhookURL   string
}

// PolicyConfig carries CEL rule overrides.
type PolicyConfig struct {
	Rules []RuleOverride
}

// RuleOverride replaces the rule of one operation.
type RuleOverride struct {
	Operation string `mapstructure:"operation"`
	Expr      string `mapstructure:"expr"`
}

// Overrides returns the overrides keyed by operation name.
func (c PolicyConfig) Overrides() map[string]string {
	out := make(map[string]string, len(c.Rules))
	for _, r := range c.Rules {
		out[r.Operation] = r.Expr
	}
	return out
}

// Load reads configuration. paths are extra directories searched for config.yaml.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		DB: DBConfig{
			URL:              v.GetString("db.url"),
			MaxConns:         v.GetInt32("db.max_conns"),
			MinConns:         v.GetInt32("db.min_conns"),
			StatementTimeout: v.GetDuration("db.statement_timeout"),
			Migrate:          v.GetBool("db.migrate"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("http.host"),
			Port:            v.GetInt("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Worker: WorkerConfig{
			PollInterval: v.GetDuration("worker.poll_interval"),
			BatchSize:    v.GetInt("worker.batch_size"),
			MaxRetries:   v.GetInt("worker.max_retries"),
			WebhookURL:   v.GetString("worker.webhook_url"),
		},
	}
	if err := v.UnmarshalKey("policy.rules", &cfg.Policy.Rules); err != nil {
		return nil, fmt.Errorf("decode policy rules: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.URL == "" {
			return errors.New("db.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "almacen")
	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("db.max_conns", 25)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.statement_timeout", 30*time.Second)
	v.SetDefault("db.migrate", true)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)

	v.SetDefault("jwt.issuer", "almacen")
	v.SetDefault("jwt.ttl", 12*time.Hour)

	v.SetDefault("storage.driver", DriverPostgres)

	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.max_retries", 5)
}
