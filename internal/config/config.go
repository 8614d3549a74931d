// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Wishlist() WishlistConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Wishlist Setters
	SetWishlistURL(string)
	SetWishlistTrigger(TriggerStyle)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	WishlistCfg WishlistConfig `mapstructure:"wishlist" yaml:"wishlist"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Wishlist() WishlistConfig { return c.WishlistCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)          { c.BrowserCfg.Headless = b }
func (c *Config) SetWishlistURL(u string)            { c.WishlistCfg.URL = u }
func (c *Config) SetWishlistTrigger(t TriggerStyle) { c.WishlistCfg.Trigger = t }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance driving the wishlist tab.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ForwardConsole    bool          `mapstructure:"forward_console" yaml:"forward_console"`
}

// TriggerStyle selects how the price sort control is presented on the page.
type TriggerStyle string

const (
	// TriggerButton appends a standalone button to the page header.
	TriggerButton TriggerStyle = "button"
	// TriggerDropdown adds a "Price" entry to the native sort menu.
	TriggerDropdown TriggerStyle = "dropdown"
)

// WishlistConfig configures the page augmentation itself.
type WishlistConfig struct {
	URL     string       `mapstructure:"url" yaml:"url"`
	Trigger TriggerStyle `mapstructure:"trigger" yaml:"trigger"`
	// StorageKey names the sessionStorage entry carrying the reload phase.
	StorageKey string `mapstructure:"storage_key" yaml:"storage_key"`
	// SentinelPrice is the placeholder amount the store shows for unannounced titles.
	SentinelPrice float64        `mapstructure:"sentinel_price" yaml:"sentinel_price"`
	ReloadDelay   time.Duration  `mapstructure:"reload_delay" yaml:"reload_delay"`
	PollInterval  time.Duration  `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollAttempts  int            `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	Labels        LabelConfig    `mapstructure:"labels" yaml:"labels"`
	Selectors     SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
}

// LabelConfig holds user facing strings.
type LabelConfig struct {
	Button       string `mapstructure:"button" yaml:"button"`
	Option       string `mapstructure:"option" yaml:"option"`
	UnknownTitle string `mapstructure:"unknown_title" yaml:"unknown_title"`
}

// SelectorConfig holds the CSS selectors describing the host page structure.
type SelectorConfig struct {
	ListInner int    `mapstructure:"list_inner_index" yaml:"list_inner_index"`
	List      string `mapstructure:"list" yaml:"list"`
	Row       string `mapstructure:"row" yaml:"row"`
	Title     string `mapstructure:"title" yaml:"title"`
	Price     string `mapstructure:"price" yaml:"price"`
	Discount  string `mapstructure:"discount" yaml:"discount"`
	SoonFlag  string `mapstructure:"soon_flag" yaml:"soon_flag"`
	TBABadge  string `mapstructure:"tba_badge" yaml:"tba_badge"`
	Section   string `mapstructure:"section" yaml:"section"`

	Header           string `mapstructure:"header" yaml:"header"`
	CollectionHeader string `mapstructure:"collection_header" yaml:"collection_header"`
	ForeignMarker    string `mapstructure:"foreign_marker" yaml:"foreign_marker"`

	Menu        string `mapstructure:"menu" yaml:"menu"`
	MenuItem    string `mapstructure:"menu_item" yaml:"menu_item"`
	MenuPointer string `mapstructure:"menu_pointer" yaml:"menu_pointer"`
	MenuLabel   string `mapstructure:"menu_label" yaml:"menu_label"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "wishsort")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	// The wishlist lives behind a login, so the default is a visible browser
	// with a persistent profile the user can sign in once with.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.config/wishsort/chrome")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.forward_console", true)

	// -- Wishlist --
	v.SetDefault("wishlist.url", "https://www.gog.com/account/wishlist")
	v.SetDefault("wishlist.trigger", string(TriggerButton))
	v.SetDefault("wishlist.storage_key", "gog_sort_fix_stage")
	v.SetDefault("wishlist.sentinel_price", 99.99)
	v.SetDefault("wishlist.reload_delay", "50ms")
	v.SetDefault("wishlist.poll_interval", "500ms")
	v.SetDefault("wishlist.poll_attempts", 240)

	v.SetDefault("wishlist.labels.button", "Sort by Price")
	v.SetDefault("wishlist.labels.option", "Price")
	v.SetDefault("wishlist.labels.unknown_title", "Unknown Title")

	v.SetDefault("wishlist.selectors.list_inner_index", 1)
	v.SetDefault("wishlist.selectors.list", ".list-inner")
	v.SetDefault("wishlist.selectors.row", ".product-row-wrapper")
	v.SetDefault("wishlist.selectors.title", ".product-row__title")
	v.SetDefault("wishlist.selectors.price", "._price.product-state__price")
	v.SetDefault("wishlist.selectors.discount", ".price-text--discount span.ng-binding")
	v.SetDefault("wishlist.selectors.soon_flag", ".product-title__flag--soon")
	v.SetDefault("wishlist.selectors.tba_badge", ".product-state__is-tba")
	v.SetDefault("wishlist.selectors.section", ".account__product-lists")
	v.SetDefault("wishlist.selectors.header", ".header__main")
	v.SetDefault("wishlist.selectors.collection_header", ".collection-header")
	v.SetDefault("wishlist.selectors.foreign_marker", "Wishlisted by")
	v.SetDefault("wishlist.selectors.menu", ".header__dropdown ._dropdown__items")
	v.SetDefault("wishlist.selectors.menu_item", ".header__dropdown ._dropdown__item")
	v.SetDefault("wishlist.selectors.menu_pointer", ".header__dropdown ._dropdown__pointer-wrapper")
	v.SetDefault("wishlist.selectors.menu_label", ".header__dropdown span[ng-show]")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in any filesystem path settings.
func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.BrowserCfg.UserDataDir)
	if err != nil {
		return fmt.Errorf("failed to expand browser.user_data_dir: %w", err)
	}
	c.BrowserCfg.UserDataDir = dir

	logFile, err := homedir.Expand(c.LoggerCfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	c.LoggerCfg.LogFile = logFile
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.WishlistCfg.Validate(); err != nil {
		return fmt.Errorf("wishlist configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout cannot be negative")
	}
	return nil
}

// Validate checks the wishlist configuration.
func (w *WishlistConfig) Validate() error {
	switch w.Trigger {
	case TriggerButton, TriggerDropdown:
	default:
		return fmt.Errorf("trigger must be %q or %q, got %q", TriggerButton, TriggerDropdown, w.Trigger)
	}
	if strings.TrimSpace(w.StorageKey) == "" {
		return fmt.Errorf("storage_key is required")
	}
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if w.PollAttempts <= 0 {
		return fmt.Errorf("poll_attempts must be a positive integer")
	}
	if w.ReloadDelay < 0 {
		return fmt.Errorf("reload_delay cannot be negative")
	}
	if w.Selectors.ListInner < 0 {
		return fmt.Errorf("selectors.list_inner_index cannot be negative")
	}
	required := map[string]string{
		"selectors.list": w.Selectors.List,
		"selectors.row":  w.Selectors.Row,
		"selectors.menu": w.Selectors.Menu,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}
