// Package config loads application configuration from file, environment,
// and defaults, and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	HTTP   HTTPConfig   `yaml:"http" mapstructure:"http"`
	Scrape ScrapeConfig `yaml:"scrape" mapstructure:"scrape"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// HTTPConfig configures the shared HTTP transport.
type HTTPConfig struct {
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs float64 `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	PerHostRate     float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
	PerHostBurst    int     `yaml:"per_host_burst" mapstructure:"per_host_burst"`
}

// Timeout returns the per-request timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BackoffBase returns the retry backoff base as a duration.
func (c HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSecs * float64(time.Second))
}

// ScrapeConfig configures batch scraping behavior.
type ScrapeConfig struct {
	OnError     string `yaml:"on_error" mapstructure:"on_error"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExportConfig configures result output.
type ExportConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCHULSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("http.user_agent", "schulsync/1.0 (+https://jedeschule.de)")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_secs", 1.0)
	v.SetDefault("http.per_host_rate", 10.0)
	v.SetDefault("http.per_host_burst", 1)
	v.SetDefault("scrape.on_error", "skip")
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("export.path", "schools.json")
	v.SetDefault("export.format", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks value ranges. Field presence is not an issue here: every
// setting has a workable default.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.TimeoutSecs <= 0 {
		problems = append(problems, "http.timeout_secs must be > 0")
	}
	if c.HTTP.MaxRetries < 1 || c.HTTP.MaxRetries > 10 {
		problems = append(problems, "http.max_retries must be between 1 and 10")
	}
	if c.HTTP.PerHostRate <= 0 {
		problems = append(problems, "http.per_host_rate must be > 0")
	}
	if c.Scrape.Concurrency < 1 || c.Scrape.Concurrency > 16 {
		problems = append(problems, "scrape.concurrency must be between 1 and 16")
	}
	switch c.Scrape.OnError {
	case "", "skip", "raise":
	default:
		problems = append(problems, "scrape.on_error must be skip or raise")
	}

	if len(problems) > 0 {
		return eris.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
