// Package config provides configuration management for filter1pux.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (FILTER1PUX_ prefix, plus NO_COLOR)
//  3. Config file (.filter1pux.yaml)
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FILTER1PUX"

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Supported output formats.
const (
	FormatAuto = "auto"
	Format1PUX = "1pux"
	FormatJSON = "json"
)

// Config represents the global configuration for filter1pux.
type Config struct {
	// LogLevel controls the verbosity of diagnostics.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of diagnostics: text or json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored diagnostics. NO_COLOR sets it as well.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all diagnostics below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Format is the output container: auto, 1pux or json.
	Format string `mapstructure:"format" json:"format"`

	// Force allows overwriting an existing output file.
	Force bool `mapstructure:"force" json:"force"`

	// ConfigFile is the resolved path to the config file used.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LogLevel:  LogLevelWarn,
		LogFormat: LogFormatText,
		Format:    FormatAuto,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	switch c.Format {
	case FormatAuto, Format1PUX, FormatJSON:
	default:
		return fmt.Errorf("invalid format %q: must be one of auto, 1pux, json", c.Format)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. Quiet forces "error".
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}
	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	// https://no-color.org: any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		cfg.NoColor = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("format", d.Format)
	v.SetDefault("force", d.Force)
}

func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".filter1pux")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "filter1pux"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags binds the command's own flags and every persistent flag up to
// the root.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if ctx == nil {
		return Default()
	}
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}
	return Default()
}
