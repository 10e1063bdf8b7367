// Package config loads and validates the gateway configuration from a YAML
// file with environment-variable overrides. A .env file in the working
// directory is applied to the environment first. The resulting Config is
// read once at startup and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// URL strategies for document references supplied as URLs.
const (
	URLStrategyPassthrough = "passthrough"
	URLStrategyFetch       = "fetch"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Auth     AuthConfig     `yaml:"auth"`
	Relay    RelayConfig    `yaml:"relay"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Upload   UploadConfig   `yaml:"upload"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AuthConfig holds the shared bearer secret. When TokenParameter is set the
// secret is read from SSM Parameter Store at startup and replaces Token.
type AuthConfig struct {
	Token          string `yaml:"token"`
	TokenParameter string `yaml:"tokenParameter"`
}

// RelayConfig describes the downstream answering service.
type RelayConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	TokenParameter string        `yaml:"tokenParameter"`
	Timeout        time.Duration `yaml:"timeout"`
	URLStrategy    string        `yaml:"urlStrategy"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the relay circuit breaker. A FailureThreshold of
// zero or less disables it.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// FetchConfig controls the remote-fetch materializer.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	TempDir string        `yaml:"tempDir"`
}

// UploadConfig limits accepted documents.
type UploadConfig struct {
	MaxBytes          int64    `yaml:"maxBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

// StorageConfig holds S3 object storage settings and the limits of the
// upload endpoint. A zero MaxBytes accepts any size and an empty
// AllowedExtensions accepts any file.
type StorageConfig struct {
	Region            string   `yaml:"region"`
	Bucket            string   `yaml:"bucket"`
	AccessKeyID       string   `yaml:"accessKeyId"`
	SecretAccessKey   string   `yaml:"secretAccessKey"`
	Endpoint          string   `yaml:"endpoint"`
	ACL               string   `yaml:"acl"`
	MaxBytes          int64    `yaml:"maxBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

// Limits returns the checks applied to files sent to the upload endpoint.
func (s StorageConfig) Limits() UploadConfig {
	return UploadConfig{MaxBytes: s.MaxBytes, AllowedExtensions: s.AllowedExtensions}
}

// Enabled reports whether enough is configured to talk to a bucket.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != "" && s.Region != ""
}

// RedisConfig holds Redis connection and answer-cache parameters. An empty
// Addr disables the cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the run-event topic. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PostgresConfig holds the upload registry connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Load applies .env (if present), reads a YAML config file (if provided)
// and applies environment-variable overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the settings the gateway cannot run without. It is called
// after secrets have been resolved.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Token) == "" {
		errs = append(errs, errors.New("auth.token is required"))
	}
	switch c.Relay.URLStrategy {
	case URLStrategyPassthrough, URLStrategyFetch:
	default:
		errs = append(errs, fmt.Errorf("relay.urlStrategy %q must be %q or %q",
			c.Relay.URLStrategy, URLStrategyPassthrough, URLStrategyFetch))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.maxBytes must be positive"))
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("upload.allowedExtensions must not be empty"))
	}
	if c.Storage.MaxBytes < 0 {
		errs = append(errs, errors.New("storage.maxBytes must not be negative"))
	}
	return errors.Join(errs...)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Relay: RelayConfig{
			Timeout:     90 * time.Second,
			URLStrategy: URLStrategyPassthrough,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
			TempDir: os.TempDir(),
		},
		Upload: UploadConfig{
			MaxBytes:          10 * 1024 * 1024,
			AllowedExtensions: []string{".pdf", ".docx"},
		},
		Storage: StorageConfig{
			ACL: "public-read",
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "hackrx.runs",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hackrx",
			User:            "hackrx",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// applyEnvOverrides reads HX_* variables plus the plain PORT, LLM_URL and
// AWS_* names and overrides the corresponding fields.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT", "HX_SERVER_PORT")
	setString(&cfg.Logging.Level, "HX_LOGGING_LEVEL")
	setString(&cfg.Logging.Format, "HX_LOGGING_FORMAT")
	setBool(&cfg.Metrics.Enabled, "HX_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "HX_METRICS_PORT")

	setString(&cfg.Auth.Token, "HX_AUTH_TOKEN")
	setString(&cfg.Auth.TokenParameter, "HX_AUTH_TOKEN_PARAMETER")

	setString(&cfg.Relay.URL, "HX_RELAY_URL", "LLM_URL")
	setString(&cfg.Relay.Token, "HX_RELAY_TOKEN")
	setString(&cfg.Relay.TokenParameter, "HX_RELAY_TOKEN_PARAMETER")
	setDuration(&cfg.Relay.Timeout, "HX_RELAY_TIMEOUT")
	setString(&cfg.Relay.URLStrategy, "HX_RELAY_URL_STRATEGY")

	setDuration(&cfg.Fetch.Timeout, "HX_FETCH_TIMEOUT")
	setString(&cfg.Fetch.TempDir, "HX_FETCH_TEMP_DIR")

	if v := os.Getenv("HX_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Upload.MaxBytes = n
		}
	}
	if v := os.Getenv("HX_UPLOAD_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Upload.AllowedExtensions = splitList(v)
	}

	setString(&cfg.Storage.Region, "AWS_REGION", "HX_STORAGE_REGION")
	setString(&cfg.Storage.Bucket, "AWS_BUCKET_NAME", "HX_STORAGE_BUCKET")
	setString(&cfg.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Storage.Endpoint, "HX_STORAGE_ENDPOINT")
	setString(&cfg.Storage.ACL, "HX_STORAGE_ACL")
	if v := os.Getenv("HX_STORAGE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.MaxBytes = n
		}
	}
	if v := os.Getenv("HX_STORAGE_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Storage.AllowedExtensions = splitList(v)
	}

	setString(&cfg.Redis.Addr, "HX_REDIS_ADDR")
	setString(&cfg.Redis.Password, "HX_REDIS_PASSWORD")
	setDuration(&cfg.Redis.CacheTTL, "HX_REDIS_CACHE_TTL")

	if v := os.Getenv("HX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	setString(&cfg.Kafka.Topic, "HX_KAFKA_TOPIC")

	setBool(&cfg.Postgres.Enabled, "HX_POSTGRES_ENABLED")
	setString(&cfg.Postgres.Host, "HX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HX_POSTGRES_PORT")
	setString(&cfg.Postgres.Database, "HX_POSTGRES_DATABASE")
	setString(&cfg.Postgres.User, "HX_POSTGRES_USER")
	setString(&cfg.Postgres.Password, "HX_POSTGRES_PASSWORD")
	setString(&cfg.Postgres.SSLMode, "HX_POSTGRES_SSLMODE")
}

// setString assigns every non-empty variable among keys in order, so later
// keys take precedence.
func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

func setBool(dst *bool, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
}

func setDuration(dst *time.Duration, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
