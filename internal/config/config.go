package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to initialise the visit engine.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Visits    VisitsConfig    `yaml:"visits"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	DB        SQLConfig       `yaml:"db"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig names the target blog and the persisted required-URL list.
type SiteConfig struct {
	BaseURL      string   `yaml:"base_url"`
	PostsFile    string   `yaml:"posts_file"`
	DefaultPosts []string `yaml:"default_posts"`
}

// VisitsConfig controls budgets, pacing, concurrency, and retry behaviour.
type VisitsConfig struct {
	Normal         int             `yaml:"normal"`
	RequiredPerURL int             `yaml:"required_per_url"`
	Concurrency    int             `yaml:"concurrency"`
	QueueSize      int             `yaml:"queue_size"`
	RequestTimeout Duration        `yaml:"request_timeout"`
	MinDelay       Duration        `yaml:"min_delay"`
	MaxDelay       Duration        `yaml:"max_delay"`
	MaxRetries     int             `yaml:"max_retries"`
	RetryBackoff   Duration        `yaml:"retry_backoff"`
	RunDeadline    Duration        `yaml:"run_deadline"`
	MinGap         Duration        `yaml:"min_gap"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	UserAgents     []string        `yaml:"user_agents"`
	Referer        string          `yaml:"referer"`
	MaxBodyBytes   int64           `yaml:"max_body_bytes"`
	ProxyURL       string          `yaml:"proxy_url"`
}

// RateLimitConfig applies a token bucket to requests against the target site.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// DiscoveryConfig tunes index-page link extraction.
type DiscoveryConfig struct {
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	MaxLinks        int      `yaml:"max_links"`
}

// RobotsConfig configures optional robots.txt politeness for discovered URLs.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// RenderingConfig controls the fraction of visits performed in headless Chrome.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Fraction           float64  `yaml:"fraction"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// SQLConfig describes an optional relational database for run history.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// Enabled reports whether a history database is configured.
func (s SQLConfig) Enabled() bool {
	return s.Driver != "" && s.DSN != ""
}

// TelegramConfig describes the notification sink. Token and chat id fall
// back to the TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID environment variables.
type TelegramConfig struct {
	Token   string   `yaml:"token"`
	ChatID  string   `yaml:"chat_id"`
	APIBase string   `yaml:"api_base"`
	Timeout Duration `yaml:"timeout"`
}

// LoggingConfig selects log verbosity, format, and the per-visit log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
	VisitLog   string `yaml:"visit_log"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Site: SiteConfig{
			BaseURL:   "https://www.207725.xyz",
			PostsFile: "posts.txt",
			DefaultPosts: []string{
				"/index.php/archives/13/",
				"/index.php/archives/5/",
			},
		},
		Visits: VisitsConfig{
			Normal:         500,
			RequiredPerURL: 3,
			Concurrency:    10,
			QueueSize:      256,
			RequestTimeout: DurationFrom(20 * time.Second),
			MinDelay:       DurationFrom(1 * time.Second),
			MaxDelay:       DurationFrom(4 * time.Second),
			MaxRetries:     2,
			RetryBackoff:   DurationFrom(1 * time.Second),
			RunDeadline:    DurationFrom(30 * time.Minute),
			MaxBodyBytes:   2 * 1024 * 1024,
		},
		Discovery: DiscoveryConfig{
			IncludePatterns: []string{"/archives/"},
			MaxLinks:        200,
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "typecho-play/1.0",
			CacheTTL:  DurationFrom(time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Fraction:           0.1,
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 2,
		},
		Telegram: TelegramConfig{
			Timeout: DurationFrom(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
			VisitLog:   "visit.log",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the visit engine configuration.
func (c Config) Validate() error {
	base, err := url.Parse(c.Site.BaseURL)
	if err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL (got %q)", c.Site.BaseURL)
	}
	if base.Host == "" {
		return fmt.Errorf("site.base_url %q missing host", c.Site.BaseURL)
	}
	if strings.TrimSpace(c.Site.PostsFile) == "" {
		return errors.New("site.posts_file must be set")
	}
	if c.Visits.Normal < 0 {
		return fmt.Errorf("visits.normal must be >= 0 (got %d)", c.Visits.Normal)
	}
	if c.Visits.RequiredPerURL < 0 {
		return fmt.Errorf("visits.required_per_url must be >= 0 (got %d)", c.Visits.RequiredPerURL)
	}
	if c.Visits.Concurrency <= 0 {
		return fmt.Errorf("visits.concurrency must be > 0 (got %d)", c.Visits.Concurrency)
	}
	if c.Visits.QueueSize <= 0 {
		return fmt.Errorf("visits.queue_size must be > 0 (got %d)", c.Visits.QueueSize)
	}
	if c.Visits.MaxRetries < 0 {
		return fmt.Errorf("visits.max_retries must be >= 0 (got %d)", c.Visits.MaxRetries)
	}
	if c.Visits.MinDelay.Duration < 0 || c.Visits.MaxDelay.Duration < c.Visits.MinDelay.Duration {
		return fmt.Errorf("visits.min_delay/max_delay must satisfy 0 <= min <= max (got %s/%s)",
			c.Visits.MinDelay, c.Visits.MaxDelay)
	}
	if c.Visits.MaxBodyBytes <= 0 {
		return fmt.Errorf("visits.max_body_bytes must be > 0 (got %d)", c.Visits.MaxBodyBytes)
	}
	if rl := c.Visits.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("visits.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Rendering.Enabled {
		if c.Rendering.Fraction < 0 || c.Rendering.Fraction > 1 {
			return fmt.Errorf("rendering.fraction must be within [0, 1] (got %g)", c.Rendering.Fraction)
		}
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

// BaseURL returns the parsed target site address. Validate must have passed.
func (c Config) BaseURL() (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(c.Site.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return base, nil
}

func (c *Config) normalise() {
	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	c.Site.PostsFile = strings.TrimSpace(c.Site.PostsFile)
	c.Site.DefaultPosts = trimNonEmpty(c.Site.DefaultPosts)

	c.Visits.UserAgents = trimNonEmpty(c.Visits.UserAgents)
	c.Visits.Referer = strings.TrimSpace(c.Visits.Referer)
	c.Visits.ProxyURL = strings.TrimSpace(c.Visits.ProxyURL)

	c.Discovery.IncludePatterns = trimNonEmpty(c.Discovery.IncludePatterns)
	c.Discovery.ExcludePatterns = trimNonEmpty(c.Discovery.ExcludePatterns)

	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	c.Telegram.APIBase = strings.TrimSpace(c.Telegram.APIBase)
	c.Logging.VisitLog = strings.TrimSpace(c.Logging.VisitLog)
}

func trimNonEmpty(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}
