// Package config loads the scraper configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, and YAD2_* environment variables (YAD2_FETCH_MIN_DELAY for
// fetch.min_delay). Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/yad2-scraper/pkg/export"
	"github.com/Sternrassler/yad2-scraper/pkg/fetcher"
	"github.com/Sternrassler/yad2-scraper/pkg/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "YAD2"

// Config is the complete scraper configuration.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Output  OutputConfig  `mapstructure:"output"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SourceConfig selects what is scraped.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`

	// Query is the URL-encoded search filter string. It stays a single string
	// because parameter names are case-sensitive and config keys are not.
	Query string `mapstructure:"query"`

	FirstPage int `mapstructure:"first_page"`
}

// FetchConfig tunes the HTTP side.
type FetchConfig struct {
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
	HTTP2        bool          `mapstructure:"http2"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// OutputConfig places the CSV file.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// LogConfig holds the two log verbosities.
type LogConfig struct {
	Level          string `mapstructure:"level"`
	TransportLevel string `mapstructure:"transport_level"`
	Pretty         bool   `mapstructure:"pretty"`
}

// MetricsConfig controls the metrics dump written at exit.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format when set.
	Textfile string `mapstructure:"textfile"`
}

func setDefaults(v *viper.Viper) {
	fc := fetcher.DefaultConfig()

	v.SetDefault("source.base_url", fc.BaseURL)
	v.SetDefault("source.query", fc.Query.Encode())
	v.SetDefault("source.first_page", 1)

	v.SetDefault("fetch.min_delay", fc.MinDelay)
	v.SetDefault("fetch.max_delay", fc.MaxDelay)
	v.SetDefault("fetch.backoff_base", fc.BackoffBase)
	v.SetDefault("fetch.max_retries", fc.MaxRetries)
	v.SetDefault("fetch.timeout", fc.Timeout)
	v.SetDefault("fetch.http2", fc.HTTP2)
	v.SetDefault("fetch.max_body_bytes", fc.MaxBodyBytes)

	v.SetDefault("output.dir", export.DefaultDir)
	v.SetDefault("output.prefix", export.DefaultPrefix)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.transport_level", string(logging.LevelWarn))
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.textfile", "")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if _, err := c.QueryValues(); err != nil {
		return err
	}
	if c.Source.FirstPage < 0 {
		return fmt.Errorf("source.first_page must be >= 0 (got %d)", c.Source.FirstPage)
	}
	if c.Fetch.MinDelay < 0 || c.Fetch.MaxDelay < 0 {
		return fmt.Errorf("fetch delays must be >= 0 (got %s, %s)", c.Fetch.MinDelay, c.Fetch.MaxDelay)
	}
	if c.Fetch.MinDelay > c.Fetch.MaxDelay {
		return fmt.Errorf("fetch.min_delay (%s) exceeds fetch.max_delay (%s)", c.Fetch.MinDelay, c.Fetch.MaxDelay)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0 (got %d)", c.Fetch.MaxRetries)
	}
	if c.Fetch.BackoffBase < 0 {
		return fmt.Errorf("fetch.backoff_base must be >= 0 (got %s)", c.Fetch.BackoffBase)
	}
	if !logging.IsValidLevel(logging.LogLevel(c.Log.Level)) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if !logging.IsValidLevel(logging.LogLevel(c.Log.TransportLevel)) {
		return fmt.Errorf("log.transport_level %q is not one of debug, info, warn, error", c.Log.TransportLevel)
	}
	return nil
}

// QueryValues parses Source.Query.
func (c *Config) QueryValues() (url.Values, error) {
	q, err := url.ParseQuery(c.Source.Query)
	if err != nil {
		return nil, fmt.Errorf("source.query: %w", err)
	}
	return q, nil
}

// FetcherConfig builds the fetcher configuration.
func (c *Config) FetcherConfig() (fetcher.Config, error) {
	q, err := c.QueryValues()
	if err != nil {
		return fetcher.Config{}, err
	}

	return fetcher.Config{
		BaseURL:      c.Source.BaseURL,
		Query:        q,
		MinDelay:     c.Fetch.MinDelay,
		MaxDelay:     c.Fetch.MaxDelay,
		BackoffBase:  c.Fetch.BackoffBase,
		MaxRetries:   c.Fetch.MaxRetries,
		Timeout:      c.Fetch.Timeout,
		HTTP2:        c.Fetch.HTTP2,
		MaxBodyBytes: c.Fetch.MaxBodyBytes,
	}, nil
}

// LoggingConfig builds the logging configuration. Output is left to the caller.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:          logging.LogLevel(c.Log.Level),
		TransportLevel: logging.LogLevel(c.Log.TransportLevel),
		Pretty:         c.Log.Pretty,
	}
}
