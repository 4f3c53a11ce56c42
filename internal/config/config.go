// Package config loads Minerva configuration from a config file, .env files,
// and environment variables. Priority (highest to lowest): environment
// variables > local .env > config file > defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"minerva/internal/logger"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	DataDir           string        `mapstructure:"data_dir"`            // Directory holding the store document files
	AutosaveInterval  time.Duration `mapstructure:"autosave_interval"`   // Periodic flush interval
	DefaultExpiryDays int           `mapstructure:"default_expiry_days"` // Expiry applied when creation gives no value
	Backend           BackendConfig `mapstructure:"backend"`
	Poll              PollConfig    `mapstructure:"poll"`
}

// BackendConfig stores remote backend connection details. When Enabled is
// false or BaseURL is empty, the local store-only backend is selected.
type BackendConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig stores the exponential backoff parameters for API status polling.
type PollConfig struct {
	Base   time.Duration `mapstructure:"base"`
	Factor float64       `mapstructure:"factor"`
	Max    time.Duration `mapstructure:"max"`
}

// Load reads configuration from the given file path (optional), .env files,
// and MINERVA_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	// Best-effort .env loading; a missing file is not an error.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env file")
	}

	v := viper.New()
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("autosave_interval", 30*time.Second)
	v.SetDefault("default_expiry_days", 30)
	v.SetDefault("backend.enabled", false)
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("poll.base", 15*time.Second)
	v.SetDefault("poll.factor", 1.5)
	v.SetDefault("poll.max", 5*time.Minute)

	v.SetEnvPrefix("MINERVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
		v.SetConfigName("minerva")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional; defaults and env cover everything.
			logger.Debug("No config file found, using defaults", "error", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultDataDir returns ~/.minerva, falling back to the working directory
// when the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".minerva"
	}
	return filepath.Join(home, ".minerva")
}
