package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Token storage backends.
const (
	TokenBackendKeyring = "keyring"
	TokenBackendStore   = "store"
)

// APIConfig holds settings for the EHR REST backend.
type APIConfig struct {
	// BaseURL is the root URL of the backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every single request, including dashboard
	// fetches that previously could hang forever.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is how often a rate-limited (429) request is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// RatePerSec and Burst configure the client-side request limiter.
	RatePerSec float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
	Burst      int     `mapstructure:"burst" yaml:"burst"`
}

// StorageConfig controls where durable client state lives.
type StorageConfig struct {
	// DBPath is the SQLite file holding the cache and session slots.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// TokenBackend is "keyring" (system keyring) or "store" (SQLite).
	TokenBackend string `mapstructure:"token_backend" yaml:"token_backend"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme           string `mapstructure:"theme" yaml:"theme"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/ehr, or the working directory when the
// home directory cannot be determined.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ehr")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ehr/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://127.0.0.1:5000",
			TimeoutSec: 30,
			MaxRetries: 3,
			RatePerSec: 5,
			Burst:      10,
		},
		Storage: StorageConfig{
			DBPath:       filepath.Join(dir, "ehr.db"),
			TokenBackend: TokenBackendKeyring,
		},
		Display: DisplayConfig{
			Theme:           "default",
			PollIntervalSec: 60,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "ehr.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Values can be overridden through EHR_* environment variables
// (e.g. EHR_API_BASE_URL).
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ehr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv knows which keys exist.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.max_retries", def.API.MaxRetries)
	v.SetDefault("api.rate_per_sec", def.API.RatePerSec)
	v.SetDefault("api.burst", def.API.Burst)
	v.SetDefault("storage.db_path", def.Storage.DBPath)
	v.SetDefault("storage.token_backend", def.Storage.TokenBackend)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("display.poll_interval_sec", def.Display.PollIntervalSec)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// validate rejects settings the client cannot run with.
func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.Storage.TokenBackend {
	case TokenBackendKeyring, TokenBackendStore:
	default:
		return fmt.Errorf("storage.token_backend must be %q or %q, got %q",
			TokenBackendKeyring, TokenBackendStore, c.Storage.TokenBackend)
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 30
	}
	if c.Display.PollIntervalSec <= 0 {
		c.Display.PollIntervalSec = 60
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("storage", cfg.Storage)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
