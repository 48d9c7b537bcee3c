// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and passed down explicitly; nothing below cmd/ reads the environment.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	WordPress WordPressConfig `mapstructure:"wordpress" yaml:"wordpress"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Mapping   MappingConfig   `mapstructure:"mapping" yaml:"mapping"`
	Content   ContentConfig   `mapstructure:"content" yaml:"content"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	WebhookSecret      string        `mapstructure:"webhook_secret" yaml:"-"`
	MaxConcurrentRuns  int64         `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	RateLimit          float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst          int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	EnableTestEndpoint bool          `mapstructure:"enable_test_endpoint" yaml:"enable_test_endpoint"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// WordPressConfig identifies the target site and the account used to log in.
type WordPressConfig struct {
	AdminURL   string `mapstructure:"admin_url" yaml:"admin_url"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"-"`
	PostType   string `mapstructure:"post_type" yaml:"post_type"`
	RememberMe bool   `mapstructure:"remember_me" yaml:"remember_me"`
	// PublishMode is either "draft" or "publish".
	PublishMode string `mapstructure:"publish_mode" yaml:"publish_mode"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	// Driver selects the automation backend: "chromedp" or "playwright".
	Driver            string            `mapstructure:"driver" yaml:"driver"`
	Headless          bool              `mapstructure:"headless" yaml:"headless"`
	SlowMo            time.Duration     `mapstructure:"slow_mo" yaml:"slow_mo"`
	Args              []string          `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int    `mapstructure:"viewport" yaml:"viewport"`
	UserAgent         string            `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone          string            `mapstructure:"timezone" yaml:"timezone"`
	Locale            string            `mapstructure:"locale" yaml:"locale"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	Stealth           bool              `mapstructure:"stealth" yaml:"stealth"`
	IgnoreTLSErrors   bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ScreenshotOnError bool              `mapstructure:"screenshot_on_error" yaml:"screenshot_on_error"`
	ScreenshotDir     string            `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// TimeoutsConfig bounds every wait performed during a run.
type TimeoutsConfig struct {
	Navigation  time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Selector    time.Duration `mapstructure:"selector" yaml:"selector"`
	PanelSettle time.Duration `mapstructure:"panel_settle" yaml:"panel_settle"`
	EditorReady time.Duration `mapstructure:"editor_ready" yaml:"editor_ready"`
	Save        time.Duration `mapstructure:"save" yaml:"save"`
	Run         time.Duration `mapstructure:"run" yaml:"run"`
}

// SessionConfig controls persistence of cookies and local storage between runs.
type SessionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
}

// MappingConfig points at the selector mapping. An empty path selects the built-in mapping.
type MappingConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ContentConfig tunes how rich-text payload values are treated before insertion.
type ContentConfig struct {
	SanitizeHTML bool `mapstructure:"sanitize_html" yaml:"sanitize_html"`
}

// StoreConfig holds the run-history database connection details.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wp-filler")
	v.SetDefault("logger.log_file", "logs/wp-filler.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.max_concurrent_runs", 1)
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.enable_test_endpoint", false)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "6m")
	v.SetDefault("server.shutdown_timeout", "30s")

	// -- WordPress --
	v.SetDefault("wordpress.post_type", "landing")
	v.SetDefault("wordpress.remember_me", true)
	v.SetDefault("wordpress.publish_mode", "draft")

	// -- Browser --
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", "100ms")
	v.SetDefault("browser.args", []string{
		"--disable-blink-features=AutomationControlled",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	})
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.screenshot_on_error", true)
	v.SetDefault("browser.screenshot_dir", "screenshots")

	setHumanoidDefaults(v)

	// -- Timeouts --
	v.SetDefault("timeouts.navigation", "30s")
	v.SetDefault("timeouts.selector", "5s")
	v.SetDefault("timeouts.panel_settle", "1s")
	v.SetDefault("timeouts.editor_ready", "5s")
	v.SetDefault("timeouts.save", "10s")
	v.SetDefault("timeouts.run", "5m")

	// -- Session --
	v.SetDefault("session.enabled", true)
	v.SetDefault("session.state_file", "~/.wp-filler/browser-data/browser-state.json")

	// -- Mapping --
	v.SetDefault("mapping.path", "")

	// -- Content --
	v.SetDefault("content.sanitize_html", true)

	// -- Store --
	v.SetDefault("store.enabled", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// The unprefixed variable names of the original .env layout are honored for
// secrets so an existing deployment keeps working unchanged.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	bindings := map[string][]string{
		"wordpress.admin_url":   {"WPFILLER_WORDPRESS_ADMIN_URL", "WP_ADMIN_URL"},
		"wordpress.username":    {"WPFILLER_WORDPRESS_USERNAME", "WP_USERNAME"},
		"wordpress.password":    {"WPFILLER_WORDPRESS_PASSWORD", "WP_PASSWORD"},
		"server.webhook_secret": {"WPFILLER_SERVER_WEBHOOK_SECRET", "WEBHOOK_SECRET"},
		"store.url":             {"WPFILLER_STORE_URL", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.WordPress.AdminURL = strings.TrimRight(cfg.WordPress.AdminURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Credentials are checked
// separately by ValidateForRun since not every command needs them.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "chromedp", "playwright":
	default:
		return fmt.Errorf("browser.driver must be one of chromedp, playwright (got %q)", c.Browser.Driver)
	}
	switch c.WordPress.PublishMode {
	case "draft", "publish":
	default:
		return fmt.Errorf("wordpress.publish_mode must be one of draft, publish (got %q)", c.WordPress.PublishMode)
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		return errors.New("server.max_concurrent_runs must be a positive integer")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if c.Timeouts.Run <= 0 {
		return errors.New("timeouts.run must be a positive duration")
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return errors.New("store.url is required when store.enabled is true")
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	return nil
}

// ValidateForRun checks the values needed to actually drive a WordPress session.
func (c *Config) ValidateForRun() error {
	if c.WordPress.AdminURL == "" {
		return errors.New("wordpress.admin_url is required (WP_ADMIN_URL)")
	}
	u, err := url.Parse(c.WordPress.AdminURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("wordpress.admin_url must be an absolute URL (got %q)", c.WordPress.AdminURL)
	}
	if c.WordPress.Username == "" || c.WordPress.Password == "" {
		return errors.New("wordpress.username and wordpress.password are required (WP_USERNAME, WP_PASSWORD)")
	}
	return nil
}
