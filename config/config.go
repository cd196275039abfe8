package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override. Nested keys use a
// double underscore, e.g. HEXWATCH_SCRAPER__CADENCE=30s.
const EnvPrefix = "HEXWATCH_"

// EnvConfigPath names the variable consulted when Load gets an empty path.
const EnvConfigPath = EnvPrefix + "CONFIG"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Slots are the catalog partitions an item kind may be assigned to.
var Slots = []string{"HELMET", "CHESTPLATE", "LEGGINGS", "BOOTS"}

// Config represents the overall application configuration.
type Config struct {
	LogLevel   string           `koanf:"log_level"`
	Server     ServerConfig     `koanf:"server"`
	Scraper    ScraperConfig    `koanf:"scraper"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Database   DatabaseConfig   `koanf:"database"`
	Push       PushConfig       `koanf:"push"`
	Webhook    WebhookConfig    `koanf:"webhook"`
	Profile    ProfileConfig    `koanf:"profile"`
	History    HistoryConfig    `koanf:"history"`
	Inventory  InventoryConfig  `koanf:"inventory"`
	WorkerPool WorkerPoolConfig `koanf:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `koanf:"size"`
	QueueSize int `koanf:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `koanf:"vapid_public_key"`
	PrivateKey string `koanf:"vapid_private_key"`
	Subject    string `koanf:"subject"`
	TTL        int    `koanf:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Port            int           `koanf:"port"`
	RequestIPHeader string        `koanf:"request_ip_header"`
	RateLimitPerSec float64       `koanf:"rate_limit_per_sec"`
	CacheTTLSeconds int           `koanf:"cache_ttl_seconds"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RetryConfig is the backoff applied to failed auction fetches.
type RetryConfig struct {
	Initial     time.Duration `koanf:"initial"`
	Max         time.Duration `koanf:"max"`
	Multiplier  float64       `koanf:"multiplier"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// ScraperConfig holds the auction scanner configuration.
type ScraperConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url"`
	HTTPProxy    string        `koanf:"http_proxy"`
	Timeout      time.Duration `koanf:"timeout"`
	Cadence      time.Duration `koanf:"cadence"`
	MinSleep     time.Duration `koanf:"min_sleep"`
	IdleInterval time.Duration `koanf:"idle_interval"`
	CursorName   string        `koanf:"cursor_name"`
	Retry        RetryConfig   `koanf:"retry"`
	// WatchedItems maps an item kind to its catalog slot.
	WatchedItems map[string]string `koanf:"watched_items"`
}

// CatalogConfig points at the reference palette.
type CatalogConfig struct {
	Path    string `koanf:"path"`
	Results int    `koanf:"results"`
	// Families maps a variant family name to the entry-name prefix of its
	// members. Only the best member of a family is reported in a ranking.
	Families map[string]string `koanf:"families"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `koanf:"driver"`
	DSN                    string `koanf:"dsn"`
	MaxOpenConns           int    `koanf:"max_open_conns"`
	MaxIdleConns           int    `koanf:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `koanf:"conn_max_lifetime_minutes"`
}

// WebhookConfig controls the chat webhook alerts.
type WebhookConfig struct {
	URL          string        `koanf:"url"`
	MentionRole  string        `koanf:"mention_role"`
	MentionBelow float64       `koanf:"mention_below"`
	RatePerSec   float64       `koanf:"rate_per_sec"`
	Timeout      time.Duration `koanf:"timeout"`
	AuctionURL   string        `koanf:"auction_url"`
	AvatarURL    string        `koanf:"avatar_url"`
}

// ProfileConfig is the player-name lookup service.
type ProfileConfig struct {
	URL      string        `koanf:"url"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	Timeout  time.Duration `koanf:"timeout"`
}

// HistoryConfig is the item-history service used to refresh duplicate owners.
type HistoryConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// InventoryConfig is the SkyBlock profiles endpoint read for a player's
// current inventories.
type InventoryConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			RateLimitPerSec: 5,
			CacheTTLSeconds: 60,
			ShutdownTimeout: 5 * time.Second,
		},
		Scraper: ScraperConfig{
			Enabled:      true,
			URL:          "https://api.hypixel.net/skyblock/auctions",
			Timeout:      10 * time.Second,
			Cadence:      55 * time.Second,
			MinSleep:     time.Second,
			IdleInterval: 250 * time.Millisecond,
			CursorName:   "auctions",
			Retry: RetryConfig{
				Initial:     500 * time.Millisecond,
				Max:         30 * time.Second,
				Multiplier:  2,
				MaxAttempts: 5,
			},
			WatchedItems: defaultWatchedItems(),
		},
		Catalog: CatalogConfig{
			Path:     "config/catalog.yaml",
			Results:  3,
			Families: defaultFamilies(),
		},
		Database: DatabaseConfig{
			Driver:                 "sqlite",
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
		},
		Push: PushConfig{TTL: 3600},
		Webhook: WebhookConfig{
			MentionBelow: 1.0,
			RatePerSec:   0.5,
			Timeout:      10 * time.Second,
			AuctionURL:   "https://sky.coflnet.com/auction/",
			AvatarURL:    "https://crafatar.com/renders/head/",
		},
		Profile: ProfileConfig{
			URL:      "https://sessionserver.mojang.com/session/minecraft/profile/",
			CacheTTL: 6 * time.Hour,
			Timeout:  10 * time.Second,
		},
		History: HistoryConfig{
			URL:     "https://api.tem.cx",
			Timeout: 10 * time.Second,
		},
		Inventory: InventoryConfig{
			URL:     "https://api.hypixel.net/v2/skyblock/profiles",
			Timeout: 10 * time.Second,
		},
		WorkerPool: WorkerPoolConfig{Size: 1, QueueSize: 100},
	}
}

func defaultWatchedItems() map[string]string {
	return map[string]string{
		"VELVET_TOP_HAT":  "HELMET",
		"CASHMERE_JACKET": "CHESTPLATE",
		"SATIN_TROUSERS":  "LEGGINGS",
		"OXFORD_SHOES":    "BOOTS",
	}
}

func defaultFamilies() map[string]string {
	return map[string]string{
		"crystal": "CRYSTAL_",
		"fairy":   "FAIRY_",
	}
}

// Load builds a Config by layering defaults, an optional YAML file and
// environment variables (low -> high precedence). An empty path falls back
// to $HEXWATCH_CONFIG; no file at all is fine.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := New()
	// A configured item list replaces the defaults instead of merging.
	if k.Exists("scraper.watched_items") {
		cfg.Scraper.WatchedItems = nil
	}
	if k.Exists("catalog.families") {
		cfg.Catalog.Families = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises and checks cfg.
func (c *Config) Validate() error {
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 100
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.Catalog.Results <= 0 {
		c.Catalog.Results = 3
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required for postgres", ErrInvalidConfig)
	}

	if c.Inventory.Enabled && (c.Inventory.URL == "" || c.Inventory.APIKey == "") {
		return fmt.Errorf("%w: inventory needs url and api_key when enabled", ErrInvalidConfig)
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("%w: catalog.path must not be empty", ErrInvalidConfig)
	}
	families := make(map[string]string, len(c.Catalog.Families))
	for name, prefix := range c.Catalog.Families {
		prefix = strings.ToUpper(strings.TrimSpace(prefix))
		if prefix == "" {
			return fmt.Errorf("%w: catalog family %q has no prefix", ErrInvalidConfig, name)
		}
		families[strings.ToLower(name)] = prefix
	}
	c.Catalog.Families = families

	s := &c.Scraper
	if s.Enabled && s.URL == "" {
		return fmt.Errorf("%w: scraper.url must not be empty", ErrInvalidConfig)
	}
	if s.Cadence <= 0 || s.MinSleep < 0 || s.IdleInterval <= 0 {
		return fmt.Errorf("%w: scraper intervals must be positive", ErrInvalidConfig)
	}
	if s.Retry.Initial <= 0 || s.Retry.Max < s.Retry.Initial {
		return fmt.Errorf("%w: scraper.retry delays are out of order", ErrInvalidConfig)
	}
	if s.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: scraper.retry.multiplier must be >= 1", ErrInvalidConfig)
	}
	if s.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: scraper.retry.max_attempts must be positive", ErrInvalidConfig)
	}

	watched := make(map[string]string, len(s.WatchedItems))
	for kind, slot := range s.WatchedItems {
		slot = strings.ToUpper(slot)
		if !isSlot(slot) {
			return fmt.Errorf("%w: item %s has unknown slot %q", ErrInvalidConfig, kind, slot)
		}
		watched[strings.ToUpper(kind)] = slot
	}
	if s.Enabled && len(watched) == 0 {
		return fmt.Errorf("%w: scraper.watched_items must not be empty", ErrInvalidConfig)
	}
	s.WatchedItems = watched
	return nil
}

func isSlot(s string) bool {
	for _, slot := range Slots {
		if slot == s {
			return true
		}
	}
	return false
}
