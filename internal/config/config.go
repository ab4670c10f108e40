// Package config provides configuration loading for rhythmd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults underneath.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete rhythmd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Scheduling SchedulingConfig `koanf:"scheduling"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ExtractionConfig holds extraction pipeline configuration. An empty
// APIKey disables the LLM strategy; the rule-based extractor always runs
// as the fallback.
type ExtractionConfig struct {
	Provider           string        `koanf:"provider"` // "openai" or "rules"
	BaseURL            string        `koanf:"base_url"`
	APIKey             string        `koanf:"api_key"`
	Model              string        `koanf:"model"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxTranscriptChars int           `koanf:"max_transcript_chars"`
}

// SchedulingConfig holds scheduling engine configuration.
type SchedulingConfig struct {
	HorizonDays     int `koanf:"horizon_days"`
	SuggestionLimit int `koanf:"suggestion_limit"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// applyDefaults fills in zero values with the shipped defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "rhythmd.db"
	}
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "openai"
	}
	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = "gpt-4o-mini"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 45 * time.Second
	}
	if cfg.Extraction.MaxTranscriptChars == 0 {
		cfg.Extraction.MaxTranscriptChars = 500000
	}
	if cfg.Scheduling.HorizonDays == 0 {
		cfg.Scheduling.HorizonDays = 7
	}
	if cfg.Scheduling.SuggestionLimit == 0 {
		cfg.Scheduling.SuggestionLimit = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Extraction.Provider {
	case "openai", "rules":
	default:
		return fmt.Errorf("unknown extraction provider %q (must be openai or rules)", c.Extraction.Provider)
	}
	if c.Extraction.Timeout <= 0 {
		return errors.New("extraction timeout must be positive")
	}
	if c.Extraction.MaxTranscriptChars < 1 {
		return errors.New("max transcript chars must be positive")
	}

	if c.Scheduling.HorizonDays < 1 || c.Scheduling.HorizonDays > 30 {
		return fmt.Errorf("invalid scheduling horizon: %d days (must be 1-30)", c.Scheduling.HorizonDays)
	}
	if c.Scheduling.SuggestionLimit < 1 || c.Scheduling.SuggestionLimit > 20 {
		return fmt.Errorf("invalid suggestion limit: %d (must be 1-20)", c.Scheduling.SuggestionLimit)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}
