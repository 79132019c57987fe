// Package config loads and validates the broker configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (HIVEFUZZ_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Environment variables only override keys that the configuration file
// sets; when no configuration file is found they are not read at all.
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
)

// Config is the broker's static configuration. Everything dynamic (fleet
// composition, seed pool, alert progress) lives in the workspace.
type Config struct {
	// Campaign describes what to fuzz and how to broke seeds.
	Campaign CampaignConfig `mapstructure:"campaign" yaml:"campaign"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the control/status HTTP server configuration.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// CampaignConfig describes one fuzzing campaign.
type CampaignConfig struct {
	// Workspace is the campaign directory: seed corpus, logs, results.
	Workspace string `mapstructure:"workspace" validate:"required" yaml:"workspace"`

	// Binaries is the directory of candidate target executables.
	Binaries string `mapstructure:"binaries" validate:"required" yaml:"binaries"`

	// Report is the path of the static-analysis defect report (JSON).
	Report string `mapstructure:"report" validate:"required" yaml:"report"`

	// Mode is the broking policy: FULL, NO_TRANSMIT or COVERAGE_ORDERED.
	Mode string `mapstructure:"mode" validate:"required,oneof=FULL NO_TRANSMIT COVERAGE_ORDERED" yaml:"mode"`

	// CheckMode is the assertion class clients enforce: CHECK_ALL or
	// ALERT_ONLY.
	CheckMode string `mapstructure:"check_mode" validate:"required,oneof=CHECK_ALL ALERT_ONLY" yaml:"check_mode"`

	// Argv is the fixed argument vector of the target program.
	Argv []string `mapstructure:"argv" yaml:"argv,omitempty"`

	// EngineArgs carries extra command-line arguments per engine,
	// keyed by engine name (TRITON, HONGGFUZZ).
	EngineArgs map[string]string `mapstructure:"engine_args" yaml:"engine_args,omitempty"`

	// Journal enables the seeds-sent journal so a broker restart does
	// not replay the whole pool to reconnecting clients.
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
}

// JournalConfig configures the badger-backed campaign journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path of the journal database. Defaults to <workspace>/journal.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig contains Prometheus configuration. Metrics are served on
// the control API's /metrics route.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig contains the control HTTP server configuration.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port the server listens on.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath searches the default config directory. When no
// config file is found, the defaults are returned as they are, without
// environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// With no config file the defaults stand alone; validation of the
	// campaign section only makes sense once the operator filled it in.
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration to path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment overrides and the config file search.
// Environment variables use the HIVEFUZZ_ prefix with underscores, e.g.
// HIVEFUZZ_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HIVEFUZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if one exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the decode hooks for custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook parses strings like "30s" into time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/hivefuzz (or ~/.config/hivefuzz).
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hivefuzz")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hivefuzz")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
