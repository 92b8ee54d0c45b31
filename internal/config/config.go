// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
// Every key can be overridden through the environment with the NYC311
// prefix, e.g. NYC311_INGEST_PAGE_SIZE.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig identifies the Socrata dataset endpoint.
type SourceConfig struct {
	URL      string `mapstructure:"url"`
	AppToken string `mapstructure:"app_token"`
}

// IngestConfig governs the fetch window and paging behavior.
type IngestConfig struct {
	PageSize     int    `mapstructure:"page_size"`
	LookbackDays int    `mapstructure:"lookback_days"`
	StartDate    string `mapstructure:"start_date"`
	EndDate      string `mapstructure:"end_date"`
	PageDelayMs  int    `mapstructure:"page_delay_ms"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// DBConfig locates the embedded store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig sets where analysis artifacts are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig toggles the Prometheus listener during ingestion.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NYC311")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "https://data.cityofnewyork.us/resource/erm2-nwe9.json")
	v.SetDefault("source.app_token", "")
	v.SetDefault("ingest.page_size", 5000)
	v.SetDefault("ingest.lookback_days", 7)
	v.SetDefault("ingest.page_delay_ms", 250)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 16000)
	v.SetDefault("db.path", "nyc311.sqlite")
	v.SetDefault("output.dir", "outputs")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if c.Ingest.PageSize <= 0 {
		return fmt.Errorf("ingest.page_size must be > 0")
	}
	if c.Ingest.LookbackDays <= 0 && c.Ingest.StartDate == "" {
		return fmt.Errorf("ingest.lookback_days must be > 0 when ingest.start_date is unset")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must be set")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// HTTPTimeout returns the per-request timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PageDelay returns the pause between successive page requests.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Ingest.PageDelayMs) * time.Millisecond
}

// Window resolves the ingestion date window. Explicit start/end dates take
// precedence; otherwise the window is lookback_days ending at now.
func (c Config) Window(now time.Time) (start, end time.Time, err error) {
	end = now.UTC()
	if c.Ingest.EndDate != "" {
		end, err = time.Parse("2006-01-02", c.Ingest.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse ingest.end_date: %w", err)
		}
	}
	if c.Ingest.StartDate != "" {
		start, err = time.Parse("2006-01-02", c.Ingest.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse ingest.start_date: %w", err)
		}
	} else {
		start = end.AddDate(0, 0, -c.Ingest.LookbackDays)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("ingest window starts after it ends: %s > %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}
