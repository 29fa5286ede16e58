// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/venue-crawler/internal/logging"
)

// Browser engines.
const (
	EngineChrome = "chrome"
	EngineStatic = "static"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    logging.Config   `mapstructure:"logging"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Ladder     LadderConfig     `mapstructure:"ladder"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Output     OutputConfig     `mapstructure:"output"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BrowserConfig selects and tunes the page engine.
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine"`
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	IdleWindow        time.Duration `mapstructure:"idle_window"`
	CloudflareBypass  bool          `mapstructure:"cloudflare_bypass"`
}

// LadderConfig sets content sufficiency thresholds.
type LadderConfig struct {
	MinChars       int `mapstructure:"min_chars"`
	ShortPageChars int `mapstructure:"short_page_chars"`
}

// DiscoveryConfig bounds link discovery.
type DiscoveryConfig struct {
	MaxCandidates   int           `mapstructure:"max_candidates"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	Settle          time.Duration `mapstructure:"settle"`
}

// ExtractionConfig points at the structured extraction service.
type ExtractionConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// PoolConfig sizes the worker pool and paces browser launches.
type PoolConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	MemoryPerWorkerMB uint64        `mapstructure:"memory_per_worker_mb"`
	LaunchesPerSecond float64       `mapstructure:"launches_per_second"`
	LaunchBurst       int           `mapstructure:"launch_burst"`
}

// ProgressConfig tunes the progress hub and run history.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	MaxRunEvents   int           `mapstructure:"max_run_events"`
}

// OutputConfig controls where aggregated records go. An empty Dir discards them.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Indent bool   `mapstructure:"indent"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.compress", false)
	v.SetDefault("browser.engine", EngineChrome)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.navigation_timeout", 20*time.Second)
	v.SetDefault("browser.idle_window", 500*time.Millisecond)
	v.SetDefault("browser.cloudflare_bypass", false)
	v.SetDefault("ladder.min_chars", 200)
	v.SetDefault("ladder.short_page_chars", 500)
	v.SetDefault("discovery.max_candidates", 50)
	v.SetDefault("discovery.max_payload_bytes", 100_000)
	v.SetDefault("discovery.settle", time.Second)
	v.SetDefault("extraction.endpoint", "")
	v.SetDefault("extraction.api_key", "")
	v.SetDefault("extraction.timeout", 25*time.Second)
	v.SetDefault("extraction.rate_limit", 0)
	v.SetDefault("extraction.burst", 1)
	v.SetDefault("pool.concurrency", 3)
	v.SetDefault("pool.task_timeout", 100*time.Second)
	v.SetDefault("pool.memory_per_worker_mb", 0)
	v.SetDefault("pool.launches_per_second", 1.0)
	v.SetDefault("pool.launch_burst", 3)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.flush_interval", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 2*time.Second)
	v.SetDefault("progress.max_run_events", 1000)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.indent", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	switch c.Browser.Engine {
	case EngineChrome, EngineStatic:
	default:
		errs = append(errs, fmt.Errorf("browser.engine must be %q or %q", EngineChrome, EngineStatic))
	}
	if u, err := url.Parse(c.Extraction.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, errors.New("extraction.endpoint must be an absolute http(s) url"))
	}
	if c.Extraction.Timeout <= 0 {
		errs = append(errs, errors.New("extraction.timeout must be > 0"))
	}
	if c.Pool.Concurrency <= 0 {
		errs = append(errs, errors.New("pool.concurrency must be > 0"))
	}
	if c.Pool.TaskTimeout <= 0 {
		errs = append(errs, errors.New("pool.task_timeout must be > 0"))
	}
	if c.Pool.LaunchesPerSecond < 0 {
		errs = append(errs, errors.New("pool.launches_per_second must be >= 0"))
	}
	if c.Discovery.MaxCandidates <= 0 {
		errs = append(errs, errors.New("discovery.max_candidates must be > 0"))
	}
	if c.Progress.BufferSize <= 0 {
		errs = append(errs, errors.New("progress.buffer_size must be > 0"))
	}
	return errors.Join(errs...)
}
