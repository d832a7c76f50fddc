package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/logger"
	"github.com/slipstream/qbremote/internal/search"
)

// Config holds all application configuration.
type Config struct {
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Search  SearchConfig  `mapstructure:"search"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DaemonConfig holds the qBittorrent WebUI connection settings.
type DaemonConfig struct {
	URL               string        `mapstructure:"url"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
}

// SearchConfig holds the search poll loop settings.
type SearchConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPolls        int           `mapstructure:"max_polls"`
	Timeout         time.Duration `mapstructure:"timeout"`
	StabilityWindow int           `mapstructure:"stability_window"`
	ResultLimit     int           `mapstructure:"result_limit"`
	Plugins         []string      `mapstructure:"plugins"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
}

// WatchConfig holds the settings of the watch command.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Filter   string        `mapstructure:"filter"`
	Category string        `mapstructure:"category"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config with default values.
func Default() *Config {
	sc := search.DefaultConfig()
	return &Config{
		Daemon: DaemonConfig{
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Search: SearchConfig{
			PollInterval:    sc.PollInterval,
			MaxPolls:        sc.MaxPolls,
			Timeout:         sc.Timeout,
			StabilityWindow: sc.StabilityWindow,
			ResultLimit:     sc.ResultLimit,
			StopTimeout:     sc.StopTimeout,
		},
		Watch: WatchConfig{
			Interval: 30 * time.Second,
			Filter:   "all",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.qbremote")
	}

	v.SetEnvPrefix("QBREMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports the variables of an optional .env file. Variables
// already present in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default values in viper. Every key needs a default for
// AutomaticEnv to pick up its environment variable on Unmarshal.
func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("daemon.url", def.Daemon.URL)
	v.SetDefault("daemon.username", "")
	v.SetDefault("daemon.password", "")
	v.SetDefault("daemon.timeout", def.Daemon.Timeout)
	v.SetDefault("daemon.requests_per_second", 0)

	v.SetDefault("search.poll_interval", def.Search.PollInterval)
	v.SetDefault("search.max_polls", def.Search.MaxPolls)
	v.SetDefault("search.timeout", def.Search.Timeout)
	v.SetDefault("search.stability_window", def.Search.StabilityWindow)
	v.SetDefault("search.result_limit", def.Search.ResultLimit)
	v.SetDefault("search.plugins", []string{})
	v.SetDefault("search.stop_timeout", def.Search.StopTimeout)

	v.SetDefault("watch.interval", def.Watch.Interval)
	v.SetDefault("watch.filter", def.Watch.Filter)
	v.SetDefault("watch.category", "")

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", def.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", def.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", def.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", def.Logging.Compress)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Daemon.URL) == "" {
		return fmt.Errorf("daemon.url is required")
	}
	if c.Daemon.RequestsPerSecond < 0 {
		return fmt.Errorf("daemon.requests_per_second must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive")
	}
	return nil
}

// Client returns the daemon client configuration.
func (c *Config) Client() *types.ClientConfig {
	return &types.ClientConfig{
		URL:               c.Daemon.URL,
		Username:          c.Daemon.Username,
		Password:          c.Daemon.Password,
		Timeout:           c.Daemon.Timeout,
		RequestsPerSecond: c.Daemon.RequestsPerSecond,
	}
}

// SearchPolicy returns the coordinator configuration.
func (c *Config) SearchPolicy() search.Config {
	return search.Config{
		PollInterval:    c.Search.PollInterval,
		MaxPolls:        c.Search.MaxPolls,
		Timeout:         c.Search.Timeout,
		StabilityWindow: c.Search.StabilityWindow,
		ResultLimit:     c.Search.ResultLimit,
		Plugins:         c.Search.Plugins,
		StopTimeout:     c.Search.StopTimeout,
	}
}

// Logger returns the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Path:       c.Logging.Path,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
