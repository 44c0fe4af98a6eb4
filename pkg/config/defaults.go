package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans keep their file value; their defaults only apply through
//     GetDefaultConfig and the sample config written by 'tgforge init'
func ApplyDefaults(cfg *Config) {
	applyBotDefaults(&cfg.Bot)
	applyAIDefaults(&cfg.AI)
	cfg.Database.ApplyDefaults()
	applyMigrationsDefaults(&cfg.Migrations)
	applyLocalesDefaults(&cfg.Locales)
	cfg.API.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyBotDefaults(cfg *BotConfig) {
	if cfg.Name == "" {
		cfg.Name = "tgforge bot"
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30 * time.Second
	}
}

func applyAIDefaults(cfg *AIConfig) {
	if cfg.Model == "" {
		cfg.Model = "openai/gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a helpful assistant replying inside a Telegram chat. Keep answers short."
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

func applyMigrationsDefaults(cfg *MigrationsConfig) {
	if cfg.Path == "" {
		cfg.Path = "migrations"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
}

func applyLocalesDefaults(cfg *LocalesConfig) {
	if cfg.Path == "" {
		cfg.Path = "locales"
	}
	if cfg.Default == "" {
		cfg.Default = "en"
	}
	if len(cfg.Supported) == 0 {
		cfg.Supported = []string{"en", "ru"}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// GetDefaultConfig returns a configuration populated entirely with defaults.
// Used by 'tgforge init' as the basis for the sample config file.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Bot.DropPendingUpdates = true
	cfg.Migrations.AutoMigrate = true
	ApplyDefaults(cfg)
	return cfg
}
