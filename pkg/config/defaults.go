package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults fills unspecified fields with sensible defaults. Explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyCampaignDefaults(&cfg.Campaign)
	applyLoggingDefaults(&cfg.Logging)
	applyAPIDefaults(&cfg.API)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyCampaignDefaults(cfg *CampaignConfig) {
	if cfg.Workspace == "" {
		cfg.Workspace = "workspace"
	}
	if cfg.Binaries == "" {
		cfg.Binaries = "bin"
	}
	if cfg.Mode == "" {
		cfg.Mode = "FULL"
	}
	cfg.Mode = strings.ToUpper(cfg.Mode)
	if cfg.CheckMode == "" {
		cfg.CheckMode = "CHECK_ALL"
	}
	cfg.CheckMode = strings.ToUpper(cfg.CheckMode)
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.Workspace, "journal")
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
