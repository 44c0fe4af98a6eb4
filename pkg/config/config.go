// Package config loads, validates, and persists the bot configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tgforge/tgforge/pkg/api"
	"github.com/tgforge/tgforge/pkg/store"
)

// Config represents the full bot configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TGFORGE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Bot configures the primary Telegram bot.
	Bot BotConfig `mapstructure:"bot" yaml:"bot"`

	// Support configures the optional escalation bot. When the token is
	// empty the support channel is disabled and the process runs without it.
	Support SupportConfig `mapstructure:"support" yaml:"support"`

	// Maintainer configures operator notifications (startup, shutdown, errors).
	Maintainer MaintainerConfig `mapstructure:"maintainer" yaml:"maintainer"`

	// AI configures the conversational AI provider.
	AI AIConfig `mapstructure:"ai" yaml:"ai"`

	// Database configures the user store (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Migrations configures the schema migration engine.
	Migrations MigrationsConfig `mapstructure:"migrations" yaml:"migrations"`

	// Locales configures translation catalogs.
	Locales LocalesConfig `mapstructure:"locales" yaml:"locales"`

	// API contains the admin HTTP API server configuration.
	API api.Config `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// BotConfig configures the primary Telegram bot.
type BotConfig struct {
	// Token is the Telegram bot API token (required).
	// Override: TGFORGE_BOT_TOKEN
	Token string `mapstructure:"token" validate:"required" yaml:"token"`

	// Name is the human-readable bot name, used in greetings and status output.
	Name string `mapstructure:"name" yaml:"name"`

	// Description is shown by the /help command.
	Description string `mapstructure:"description" yaml:"description,omitempty"`

	// PollTimeout is the long-polling timeout for getUpdates.
	// Default: 30s
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`

	// DropPendingUpdates discards updates accumulated while the bot was down.
	// Default: true (avoids replaying a backlog after maintenance)
	DropPendingUpdates bool `mapstructure:"drop_pending_updates" yaml:"drop_pending_updates"`
}

// SupportConfig configures the optional escalation bot.
type SupportConfig struct {
	// Token is the support bot API token. Empty disables the support channel.
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// ChatID is the chat where escalated messages are forwarded.
	ChatID int64 `mapstructure:"chat_id" yaml:"chat_id,omitempty"`
}

// MaintainerConfig configures operator notifications.
type MaintainerConfig struct {
	// ChatID is the maintainer's chat. Zero disables notifications.
	ChatID int64 `mapstructure:"chat_id" yaml:"chat_id,omitempty"`
}

// AIConfig configures the conversational AI provider.
type AIConfig struct {
	// APIKey authenticates against the provider. Empty disables AI replies.
	// Override: TGFORGE_AI_API_KEY
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// Model is the model identifier passed to the provider.
	// Default: openai/gpt-4o-mini
	Model string `mapstructure:"model" yaml:"model"`

	// BaseURL is the OpenAI-compatible API endpoint.
	// Default: https://openrouter.ai/api/v1
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SystemPrompt primes every conversation.
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`

	// Timeout bounds a single completion request.
	// Default: 60s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MigrationsConfig configures the schema migration engine.
type MigrationsConfig struct {
	// Path is the directory containing migration scripts.
	// Default: ./migrations
	Path string `mapstructure:"path" yaml:"path"`

	// AutoMigrate controls whether pending migrations are applied during
	// startup. When false, startup aborts if the schema is not at head.
	// Default: true
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`

	// Timeout bounds a single migration run.
	// Default: 2m
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LocalesConfig configures translation catalogs.
type LocalesConfig struct {
	// Path is the directory containing per-language YAML catalogs.
	// Default: ./locales
	Path string `mapstructure:"path" yaml:"path"`

	// Default is the fallback language code.
	// Default: en
	Default string `mapstructure:"default" yaml:"default"`

	// Supported lists the language codes users may select.
	// Default: [en, ru]
	Supported []string `mapstructure:"supported" yaml:"supported"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// HasSupportBot reports whether the support channel is configured.
func (c *Config) HasSupportBot() bool {
	return c.Support.Token != "" && c.Support.ChatID != 0
}

// HasMaintainer reports whether maintainer notifications are configured.
func (c *Config) HasMaintainer() bool {
	return c.Maintainer.ChatID != 0
}

// HasAI reports whether AI replies are configured.
func (c *Config) HasAI() bool {
	return c.AI.APIKey != ""
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TGFORGE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Env-only overrides for secrets, so a token never has to live on disk
	applyEnvOverrides(&cfg)

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  tgforge init\n\n"+
				"Or specify a custom config file:\n"+
				"  tgforge <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  tgforge init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file holds bot tokens and API keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use TGFORGE_ prefix and underscores
	// Example: TGFORGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("TGFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/tgforge/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// applyEnvOverrides applies secret overrides that must work even when no
// keys for them exist in the config file. AutomaticEnv only resolves keys
// viper has seen, so secrets get an explicit lookup.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("TGFORGE_BOT_TOKEN"); token != "" {
		cfg.Bot.Token = token
	}
	if token := os.Getenv("TGFORGE_SUPPORT_TOKEN"); token != "" {
		cfg.Support.Token = token
	}
	if key := os.Getenv("TGFORGE_AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config paths surface as os.PathError instead
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tgforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "tgforge")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
