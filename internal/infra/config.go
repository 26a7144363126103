package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// TimeframeConfig declares one analysis timeframe
type TimeframeConfig struct {
	ID          string `yaml:"id"`
	IntervalMin int    `yaml:"interval_min"`
	MinCandles  int    `yaml:"min_candles"`
}

// Config holds every setting of the service. Loaded once, validated, then
// passed into each component by constructor - there is no global config.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Harem struct {
			URL        string `yaml:"url"`
			Locale     string `yaml:"locale"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"harem"`
	} `yaml:"api"`

	Ingest struct {
		PollIntervalSec  int    `yaml:"poll_interval_sec"`
		CacheValiditySec int    `yaml:"cache_validity_sec"`
		CacheFile        string `yaml:"cache_file"`
		// Fallback prices stay strings here: yaml.v3 cannot unmarshal into
		// decimal.Decimal. Validate checks them, FallbackPrices parses them.
		FallbackAlis  string `yaml:"fallback_alis"`
		FallbackSatis string `yaml:"fallback_satis"`
	} `yaml:"ingest"`

	Timeframes []TimeframeConfig `yaml:"timeframes"`

	Analysis struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"analysis"`

	Broadcast struct {
		PriceTTLSec   int `yaml:"price_ttl_sec"`
		PerfTTLSec    int `yaml:"perf_ttl_sec"`
		SignalsTTLSec int `yaml:"signals_ttl_sec"`
		BatchSize     int `yaml:"batch_size"`
		BatchPauseMS  int `yaml:"batch_pause_ms"`
		MaxClients    int `yaml:"max_clients"`
	} `yaml:"broadcast"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		Path   string `yaml:"path"`   // sqlite file path
		DSN    string `yaml:"dsn"`    // postgres DSN
	} `yaml:"storage"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Maintenance struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"maintenance"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values so a minimal config file still runs
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "gold-price-analyzer"
	}
	if c.API.Harem.URL == "" {
		c.API.Harem.URL = "https://canlipiyasalar.haremaltin.com/tmp/altin.json"
	}
	if c.API.Harem.Locale == "" {
		c.API.Harem.Locale = "tr"
	}
	if c.API.Harem.TimeoutSec <= 0 {
		c.API.Harem.TimeoutSec = 10
	}
	if c.Ingest.PollIntervalSec <= 0 {
		c.Ingest.PollIntervalSec = 5
	}
	if c.Ingest.CacheValiditySec <= 0 {
		c.Ingest.CacheValiditySec = 300
	}
	if c.Ingest.CacheFile == "" {
		c.Ingest.CacheFile = "data/price_cache.json"
	}
	if c.Ingest.FallbackAlis == "" {
		c.Ingest.FallbackAlis = "2000"
	}
	if c.Ingest.FallbackSatis == "" {
		c.Ingest.FallbackSatis = "2010"
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = []TimeframeConfig{
			{ID: "15m", IntervalMin: 15, MinCandles: 20},
			{ID: "1h", IntervalMin: 60, MinCandles: 24},
			{ID: "4h", IntervalMin: 240, MinCandles: 30},
			{ID: "1d", IntervalMin: 1440, MinCandles: 30},
		}
	}
	if c.Analysis.Workers <= 0 {
		c.Analysis.Workers = 4
	}
	if c.Analysis.QueueSize <= 0 {
		c.Analysis.QueueSize = 16
	}
	if c.Broadcast.PriceTTLSec <= 0 {
		c.Broadcast.PriceTTLSec = 15
	}
	if c.Broadcast.PerfTTLSec <= 0 {
		c.Broadcast.PerfTTLSec = 60
	}
	if c.Broadcast.SignalsTTLSec <= 0 {
		c.Broadcast.SignalsTTLSec = 120
	}
	if c.Broadcast.BatchSize <= 0 {
		c.Broadcast.BatchSize = 20
	}
	if c.Broadcast.BatchPauseMS <= 0 {
		c.Broadcast.BatchPauseMS = 100
	}
	if c.Broadcast.MaxClients <= 0 {
		c.Broadcast.MaxClients = 100
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/analyzer.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Maintenance.RetentionDays <= 0 {
		c.Maintenance.RetentionDays = 90
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity. Every rejection is a ConfigError
// naming the offending field.
func (c *Config) Validate() error {
	if !hasPrefix(c.API.Harem.URL, "http://") && !hasPrefix(c.API.Harem.URL, "https://") {
		return &domain.ConfigError{Field: "api.harem.url", Err: fmt.Errorf("not an http(s) URL: %s", c.API.Harem.URL)}
	}
	if c.Ingest.PollIntervalSec <= 0 {
		return &domain.ConfigError{Field: "ingest.poll_interval_sec", Err: errors.New("must be positive")}
	}
	if c.Ingest.CacheValiditySec <= 0 {
		return &domain.ConfigError{Field: "ingest.cache_validity_sec", Err: errors.New("must be positive")}
	}
	if err := validPrice(c.Ingest.FallbackAlis); err != nil {
		return &domain.ConfigError{Field: "ingest.fallback_alis", Err: err}
	}
	if err := validPrice(c.Ingest.FallbackSatis); err != nil {
		return &domain.ConfigError{Field: "ingest.fallback_satis", Err: err}
	}
	seen := make(map[string]bool, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		if tf.ID == "" {
			return &domain.ConfigError{Field: "timeframes", Err: errors.New("timeframe id must not be empty")}
		}
		if tf.IntervalMin <= 0 {
			return &domain.ConfigError{Field: "timeframes", Err: fmt.Errorf("timeframe %s: interval must be positive", tf.ID)}
		}
		if seen[tf.ID] {
			return &domain.ConfigError{Field: "timeframes", Err: fmt.Errorf("duplicate timeframe id: %s", tf.ID)}
		}
		seen[tf.ID] = true
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Err: fmt.Errorf("out of range: %d", c.Server.Port)}
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver: %s", c.Storage.Driver)}
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("postgres storage requires a DSN")}
	}
	return nil
}

func validPrice(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not a valid price: %q", s)
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative: %s", s)
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment overrides for deploy-specific values
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("GOLD_API_URL"); url != "" {
		cfg.API.Harem.URL = url
	}
	if locale := os.Getenv("GOLD_API_LOCALE"); locale != "" {
		cfg.API.Harem.Locale = locale
	}
	if port := os.Getenv("GOLD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if dsn := os.Getenv("GOLD_STORAGE_DSN"); dsn != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = dsn
	}
	if addr := os.Getenv("GOLD_REDIS_ADDR"); addr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("GOLD_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if level := os.Getenv("GOLD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// PollInterval returns the ingestion poll cadence
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Ingest.PollIntervalSec) * time.Second
}

// CacheValidity returns the quote cache validity window
func (c *Config) CacheValidity() time.Duration {
	return time.Duration(c.Ingest.CacheValiditySec) * time.Second
}

// FallbackPrices returns the constants served when the quote cache is stale.
// Validate has already checked that both strings parse.
func (c *Config) FallbackPrices() (alis, satis decimal.Decimal) {
	alis, _ = decimal.NewFromString(c.Ingest.FallbackAlis)
	satis, _ = decimal.NewFromString(c.Ingest.FallbackSatis)
	return alis, satis
}

// HaremTimeout returns the upstream HTTP timeout
func (c *Config) HaremTimeout() time.Duration {
	return time.Duration(c.API.Harem.TimeoutSec) * time.Second
}

// ChannelTTLs returns the per-channel rebuild windows keyed by channel name
func (c *Config) ChannelTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"price":   time.Duration(c.Broadcast.PriceTTLSec) * time.Second,
		"perf":    time.Duration(c.Broadcast.PerfTTLSec) * time.Second,
		"signals": time.Duration(c.Broadcast.SignalsTTLSec) * time.Second,
	}
}

// BatchPause returns the pause between broadcast batches
func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.Broadcast.BatchPauseMS) * time.Millisecond
}

// Retention returns how long signals are kept before maintenance purges them
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Maintenance.RetentionDays) * 24 * time.Hour
}
