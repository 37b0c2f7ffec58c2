// Package config handles configuration loading and management for weft.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/weftlabs/weft/pkg/models"
)

// Config holds all configuration for weft.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	State     StateConfig     `mapstructure:"state"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes requests through AWS Bedrock instead of the
	// Anthropic API directly.
	UseBedrock bool `mapstructure:"use_bedrock"`
}

// RuntimeConfig holds execution runtime settings.
type RuntimeConfig struct {
	// MaxParallelism caps concurrent branches within one fan-out.
	MaxParallelism int `mapstructure:"max_parallelism"`
	// DebugLog is the path of the runtime debug log. Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath overrides the default state database location.
	DBPath string `mapstructure:"db_path"`
}

// TimeoutsConfig holds per-side-effect-class task timeouts.
type TimeoutsConfig struct {
	Pure       time.Duration `mapstructure:"pure"`
	Idempotent time.Duration `mapstructure:"idempotent"`
	Effectful  time.Duration `mapstructure:"effectful"`
}

// ForSideEffect returns the timeout for a side-effect class.
func (tc *TimeoutsConfig) ForSideEffect(s models.SideEffect) time.Duration {
	switch s {
	case models.SideEffectPure:
		return tc.Pure
	case models.SideEffectIdempotent:
		return tc.Idempotent
	case models.SideEffectEffectful:
		return tc.Effectful
	default:
		return tc.Pure
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.weft.yaml in current directory or parent)
// 3. User config (~/.config/weft/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("runtime.max_parallelism", cfg.Runtime.MaxParallelism)
	v.Set("runtime.debug_log", cfg.Runtime.DebugLog)
	v.Set("state.db_path", cfg.State.DBPath)
	v.Set("timeouts.pure", cfg.Timeouts.Pure.String())
	v.Set("timeouts.idempotent", cfg.Timeouts.Idempotent.String())
	v.Set("timeouts.effectful", cfg.Timeouts.Effectful.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("runtime.max_parallelism", 4)
	v.SetDefault("runtime.debug_log", "")

	v.SetDefault("state.db_path", "")

	v.SetDefault("timeouts.pure", "5m")
	v.SetDefault("timeouts.idempotent", "10m")
	v.SetDefault("timeouts.effectful", "15m")
}

// getUserConfigDir returns the XDG config directory for weft.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weft")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weft")
	}
	return filepath.Join(home, ".config", "weft")
}

// findProjectConfig searches for .weft.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weft.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Runtime: RuntimeConfig{
			MaxParallelism: 4,
		},
		Timeouts: TimeoutsConfig{
			Pure:       5 * time.Minute,
			Idempotent: 10 * time.Minute,
			Effectful:  15 * time.Minute,
		},
	}
}
