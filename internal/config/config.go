// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (PAPERCHAT_* and DATABASE_URL)
//  2. Config file (~/.paperchat/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sensitive fields are masked in MarshalJSON; when adding a new secret
// field, update MarshalJSON too.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel validation errors. Check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidMaxTokens indicates max tokens is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrMissingSearchURL indicates no retrieval backend URL is configured.
	ErrMissingSearchURL = errors.New("missing search base URL")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Config stores application configuration.
type Config struct {
	// Language model configuration
	ModelName         string  `mapstructure:"model_name" json:"model_name"`
	MaxTokens         int     `mapstructure:"max_tokens" json:"max_tokens"`
	OpenAIBaseURL     string  `mapstructure:"openai_base_url" json:"openai_base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`

	// Conversation history windows, in messages
	HistoryWindow    int `mapstructure:"history_window" json:"history_window"`
	DocHistoryWindow int `mapstructure:"doc_history_window" json:"doc_history_window"`

	// Retrieval backend
	SearchBaseURL   string `mapstructure:"search_base_url" json:"search_base_url"`
	SearchTimeoutMS int    `mapstructure:"search_timeout_ms" json:"search_timeout_ms"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".paperchat")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model_name", "gpt-4o-mini")
	viper.SetDefault("max_tokens", 1000)
	viper.SetDefault("requests_per_second", 0)

	viper.SetDefault("history_window", 8)
	viper.SetDefault("doc_history_window", 10)

	viper.SetDefault("search_base_url", "http://localhost:8000")
	viper.SetDefault("search_timeout_ms", 10000)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "paperchat")
	viper.SetDefault("postgres_password", "paperchat_dev_password")
	viper.SetDefault("postgres_db_name", "paperchat")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("server_addr", ":8080")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "paperchat")
	viper.SetDefault("tracing.environment", "dev")
}

func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "PAPERCHAT_MODEL_NAME")
	mustBind("openai_base_url", "PAPERCHAT_OPENAI_BASE_URL")
	mustBind("search_base_url", "PAPERCHAT_SEARCH_BASE_URL")
	mustBind("server_addr", "PAPERCHAT_SERVER_ADDR")
	mustBind("tracing.enabled", "PAPERCHAT_TRACING_ENABLED")
	mustBind("tracing.endpoint", "PAPERCHAT_TRACING_ENDPOINT")
	mustBind("postgres_password", "PAPERCHAT_POSTGRES_PASSWORD")
	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via Viper.
}

// Validate checks the configuration. Fail fast at startup rather than at
// first use.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.MaxTokens < 1 || c.MaxTokens > 128000 {
		return fmt.Errorf("%w: %d (must be 1-128000)", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.HistoryWindow < 1 || c.HistoryWindow > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidHistoryWindow, c.HistoryWindow)
	}
	if c.DocHistoryWindow < 1 || c.DocHistoryWindow > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidHistoryWindow, c.DocHistoryWindow)
	}
	if c.SearchBaseURL == "" {
		return ErrMissingSearchURL
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive fields masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	return json.Marshal(masked)
}
