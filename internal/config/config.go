// Package config provides configuration file loading and validation for the contract service.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonathan/contract-signer/internal/rendering"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// MinioConfig holds archive bucket settings.
type MinioConfig struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`
}

// KafkaConfig holds notification topic settings.
type KafkaConfig struct {
	Brokers []string          `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic   string            `json:"topic,omitempty" yaml:"topic,omitempty"`
	Topics  map[string]string `json:"topics,omitempty" yaml:"topics,omitempty"`
}

// Config represents the service configuration.
type Config struct {
	Port         int    `json:"port,omitempty" yaml:"port,omitempty"`
	DatabaseURL  string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	TemplatesDir string `json:"templates_dir,omitempty" yaml:"templates_dir,omitempty"`

	ChromeURL            string `json:"chrome_url,omitempty" yaml:"chrome_url,omitempty"`
	ChromePath           string `json:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`
	RenderTimeoutSeconds int    `json:"render_timeout_seconds,omitempty" yaml:"render_timeout_seconds,omitempty"`
	ClauseStart          string `json:"clause_start,omitempty" yaml:"clause_start,omitempty"`

	SigningAPIURL      string `json:"signing_api_url,omitempty" yaml:"signing_api_url,omitempty"`
	SigningAPIKey      string `json:"signing_api_key,omitempty" yaml:"signing_api_key,omitempty"`
	SigningRedirectURL string `json:"signing_redirect_url,omitempty" yaml:"signing_redirect_url,omitempty"`
	SendImmediately    *bool  `json:"send_immediately,omitempty" yaml:"send_immediately,omitempty"`

	WebhookSecret       string `json:"webhook_secret,omitempty" yaml:"webhook_secret,omitempty"`
	WebhookSecretHeader string `json:"webhook_secret_header,omitempty" yaml:"webhook_secret_header,omitempty"`

	Minio    MinioConfig `json:"minio,omitempty" yaml:"minio,omitempty"`
	RedisURL string      `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	Kafka    KafkaConfig `json:"kafka,omitempty" yaml:"kafka,omitempty"`

	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	LogFile   string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	send := true
	return Config{
		Port:                 8080,
		RenderTimeoutSeconds: 60,
		ClauseStart:          rendering.DefaultClauseStart.String(),
		SendImmediately:      &send,
		WebhookSecretHeader:  "X-Documenso-Secret",
		Minio:                MinioConfig{Bucket: "contracts"},
		Kafka:                KafkaConfig{Topic: "contract-events"},
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// LoadConfig reads a JSON or YAML config file. The format follows the file extension.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// FromEnv reads the configuration from environment variables. Unset variables leave fields empty.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		TemplatesDir:        os.Getenv("TEMPLATES_DIR"),
		ChromeURL:           os.Getenv("CHROME_URL"),
		ChromePath:          os.Getenv("CHROME_PATH"),
		ClauseStart:         os.Getenv("CLAUSE_START"),
		SigningAPIURL:       os.Getenv("SIGNING_API_URL"),
		SigningAPIKey:       os.Getenv("SIGNING_API_KEY"),
		SigningRedirectURL:  os.Getenv("SIGNING_REDIRECT_URL"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookSecretHeader: os.Getenv("WEBHOOK_SECRET_HEADER"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    os.Getenv("MINIO_BUCKET"),
			UseSSL:    envBool("MINIO_USE_SSL"),
		},
		RedisURL: os.Getenv("REDIS_URL"),
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   os.Getenv("KAFKA_TOPIC"),
		},
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),
		LogFile:   os.Getenv("LOG_FILE"),
	}
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		cfg.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("RENDER_TIMEOUT_SECONDS")); err == nil {
		cfg.RenderTimeoutSeconds = v
	}
	if v, err := strconv.ParseBool(os.Getenv("SEND_IMMEDIATELY")); err == nil {
		cfg.SendImmediately = &v
	}
	return cfg
}

// Load layers environment variables over the optional config file over the defaults, then validates.
func Load(path string) (*Config, error) {
	merged := FromEnv()
	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged = merged.MergeWithDefaults(*file)
	}
	merged = merged.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate checks that the configuration values are consistent.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.RenderTimeoutSeconds < 0 {
		return fmt.Errorf("render_timeout_seconds must be non-negative, got %d", c.RenderTimeoutSeconds)
	}
	if c.ClauseStart != "" {
		if _, err := rendering.ParseClauseNumber(c.ClauseStart); err != nil {
			return fmt.Errorf("invalid clause_start %q: %w", c.ClauseStart, err)
		}
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
		}
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	for name, raw := range map[string]string{
		"signing_api_url":      c.SigningAPIURL,
		"signing_redirect_url": c.SigningRedirectURL,
		"chrome_url":           c.ChromeURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return fmt.Errorf("minio.bucket is required when minio.endpoint is set")
	}
	if c.SigningAPIURL != "" && c.SigningAPIKey == "" {
		return fmt.Errorf("signing_api_key is required when signing_api_url is set")
	}
	return nil
}

// MergeWithDefaults returns a new config with empty fields filled from defaults.
func (c Config) MergeWithDefaults(defaults Config) Config {
	result := c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.TemplatesDir == "" {
		result.TemplatesDir = defaults.TemplatesDir
	}
	if result.ChromeURL == "" {
		result.ChromeURL = defaults.ChromeURL
	}
	if result.ChromePath == "" {
		result.ChromePath = defaults.ChromePath
	}
	if result.RenderTimeoutSeconds == 0 {
		result.RenderTimeoutSeconds = defaults.RenderTimeoutSeconds
	}
	if result.ClauseStart == "" {
		result.ClauseStart = defaults.ClauseStart
	}
	if result.SigningAPIURL == "" {
		result.SigningAPIURL = defaults.SigningAPIURL
	}
	if result.SigningAPIKey == "" {
		result.SigningAPIKey = defaults.SigningAPIKey
	}
	if result.SigningRedirectURL == "" {
		result.SigningRedirectURL = defaults.SigningRedirectURL
	}
	if result.SendImmediately == nil {
		result.SendImmediately = defaults.SendImmediately
	}
	if result.WebhookSecret == "" {
		result.WebhookSecret = defaults.WebhookSecret
	}
	if result.WebhookSecretHeader == "" {
		result.WebhookSecretHeader = defaults.WebhookSecretHeader
	}
	if result.Minio.Endpoint == "" {
		result.Minio.Endpoint = defaults.Minio.Endpoint
	}
	if result.Minio.AccessKey == "" {
		result.Minio.AccessKey = defaults.Minio.AccessKey
	}
	if result.Minio.SecretKey == "" {
		result.Minio.SecretKey = defaults.Minio.SecretKey
	}
	if result.Minio.Bucket == "" {
		result.Minio.Bucket = defaults.Minio.Bucket
	}
	if !result.Minio.UseSSL {
		result.Minio.UseSSL = defaults.Minio.UseSSL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}
	if len(result.Kafka.Brokers) == 0 {
		result.Kafka.Brokers = defaults.Kafka.Brokers
	}
	if result.Kafka.Topic == "" {
		result.Kafka.Topic = defaults.Kafka.Topic
	}
	if len(result.Kafka.Topics) == 0 {
		result.Kafka.Topics = defaults.Kafka.Topics
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if result.LogFile == "" {
		result.LogFile = defaults.LogFile
	}

	return result
}

// ShouldSendImmediately reports whether provider documents are mailed on creation.
func (c *Config) ShouldSendImmediately() bool {
	return c.SendImmediately == nil || *c.SendImmediately
}

// ClauseNumber returns the parsed default clause start.
func (c *Config) ClauseNumber() rendering.ClauseNumber {
	n, err := rendering.ParseClauseNumber(c.ClauseStart)
	if err != nil {
		return rendering.DefaultClauseStart
	}
	return n
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
