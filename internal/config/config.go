// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Environment variables carrying secrets and endpoints. They are bound explicitly so they
// work without the CYTHINK_ prefix, matching what existing projects already export.
const (
	EnvOpenAIAPIKey  = "OPEN_AI_API_KEY"
	EnvOpenAIBaseURL = "OPEN_AI_BASE_URL"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvGeminiBaseURL = "GEMINI_BASE_URL"
	EnvDatabaseURL   = "CYTHINK_CACHE_DATABASE_URL"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Translator TranslatorConfig `mapstructure:"translator" yaml:"translator"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Context    ContextConfig    `mapstructure:"context" yaml:"context"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Project    ProjectConfig    `mapstructure:"project" yaml:"project"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ClientKind selects between the hosted and the locally hosted translation backend.
type ClientKind string

const (
	ClientHosted ClientKind = "hosted"
	ClientLocal  ClientKind = "local"
)

// Provider selects the hosted API implementation.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// TranslatorConfig configures the language-model backend.
type TranslatorConfig struct {
	Client            ClientKind     `mapstructure:"client" yaml:"client"`
	Provider          Provider       `mapstructure:"provider" yaml:"provider"`
	Model             string         `mapstructure:"model" yaml:"model"`
	Timeout           time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int            `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	FallbackLocal     bool           `mapstructure:"fallback_local" yaml:"fallback_local"`
	Options           map[string]any `mapstructure:"options" yaml:"options"`
	OpenAI            HostedConfig   `mapstructure:"openai" yaml:"openai"`
	Gemini            HostedConfig   `mapstructure:"gemini" yaml:"gemini"`
	Local             LocalConfig    `mapstructure:"local" yaml:"local"`
}

// HostedConfig holds credentials for a hosted API. Both fields come from the environment.
type HostedConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"-"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// LocalConfig points at a locally hosted model server.
type LocalConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Model is used when the local server serves as the fallback of a hosted backend.
	Model string `mapstructure:"model" yaml:"model"`
}

// CacheBackend selects the persistence port of the durable cache.
type CacheBackend string

const (
	CacheBackendFile     CacheBackend = "file"
	CacheBackendPostgres CacheBackend = "postgres"
)

// CacheConfig configures the durable cache and the pending ledger.
type CacheConfig struct {
	Backend      CacheBackend `mapstructure:"backend" yaml:"backend"`
	Path         string       `mapstructure:"path" yaml:"path"`
	PendingLimit int          `mapstructure:"pending_limit" yaml:"pending_limit"`
	DatabaseURL  string       `mapstructure:"database_url" yaml:"-"`
}

// ContextConfig bounds the markup sent to the backend.
type ContextConfig struct {
	MaxLength int `mapstructure:"max_length" yaml:"max_length"`
}

// ServerConfig configures the companion endpoint.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address of the companion endpoint.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// URL returns the base URL clients use to reach the companion endpoint.
func (s ServerConfig) URL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// BrowserConfig configures the chromedp automation engine.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// ProjectConfig locates the project whose spec files and agent instructions are used.
type ProjectConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cythink")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Translator --
	v.SetDefault("translator.client", string(ClientHosted))
	v.SetDefault("translator.provider", string(ProviderOpenAI))
	v.SetDefault("translator.model", "")
	v.SetDefault("translator.timeout", "120s")
	v.SetDefault("translator.requests_per_minute", 0)
	v.SetDefault("translator.fallback_local", false)
	v.SetDefault("translator.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("translator.gemini.base_url", "")
	v.SetDefault("translator.local.base_url", "http://localhost:11434/api")
	v.SetDefault("translator.local.model", "")

	// -- Cache --
	v.SetDefault("cache.backend", string(CacheBackendFile))
	v.SetDefault("cache.path", "thoughts.json")
	v.SetDefault("cache.pending_limit", 1024)

	// -- Context --
	v.SetDefault("context.max_length", 10000)

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 4321)
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.command_timeout", "4s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Project --
	v.SetDefault("project.root", ".")
}

// BindEnv binds the secret-bearing keys to their well-known environment variables.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("translator.openai.api_key", EnvOpenAIAPIKey)
	_ = v.BindEnv("translator.openai.base_url", EnvOpenAIBaseURL)
	_ = v.BindEnv("translator.gemini.api_key", EnvGeminiAPIKey)
	_ = v.BindEnv("translator.gemini.base_url", EnvGeminiBaseURL)
	_ = v.BindEnv("cache.database_url", EnvDatabaseURL)
}

// NewConfigFromViper creates a new configuration instance from a viper object and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading ~ in the file system paths of the configuration.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Cache.Path, &c.Project.Root, &c.Logger.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Translator.Validate(); err != nil {
		return fmt.Errorf("translator: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Context.MaxLength <= 0 {
		return errors.New("context.max_length must be a positive integer")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}

// Validate checks that the selected backend has everything it needs. A hosted backend
// without credentials is a fatal startup error.
func (t *TranslatorConfig) Validate() error {
	switch t.Client {
	case ClientLocal:
		if strings.TrimSpace(t.Local.BaseURL) == "" {
			return errors.New("local.base_url is required for the local client")
		}
	case ClientHosted:
		switch t.Provider {
		case ProviderOpenAI, "":
			if t.OpenAI.APIKey == "" {
				return fmt.Errorf("%s environment variable is required", EnvOpenAIAPIKey)
			}
			if t.OpenAI.BaseURL == "" {
				return fmt.Errorf("%s environment variable is required", EnvOpenAIBaseURL)
			}
		case ProviderGemini:
			if t.Gemini.APIKey == "" {
				return fmt.Errorf("%s environment variable is required", EnvGeminiAPIKey)
			}
		default:
			return fmt.Errorf("unsupported hosted provider: %q", t.Provider)
		}
	default:
		return fmt.Errorf("unsupported client: %q (supported: %s, %s)", t.Client, ClientHosted, ClientLocal)
	}
	if t.RequestsPerMinute < 0 {
		return errors.New("requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the cache configuration.
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheBackendFile, "":
		if c.Path == "" {
			return errors.New("path is required for the file backend")
		}
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s is required for the postgres backend", EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("unsupported backend: %q", c.Backend)
	}
	if c.PendingLimit <= 0 {
		return errors.New("pending_limit must be a positive integer")
	}
	return nil
}
