package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "24h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Source struct {
		Provider string `yaml:"provider"` // yahoo | mock
		BaseURL  string `yaml:"base_url"`
	} `yaml:"source"`
	Fetch struct {
		MaxRetries        int      `yaml:"max_retries"`
		BackoffBase       Duration `yaml:"backoff_base"`
		BackoffMultiplier float64  `yaml:"backoff_multiplier"`
		Timeout           Duration `yaml:"timeout"`
		BulkTimeout       Duration `yaml:"bulk_timeout"`
		MaxConcurrent     int      `yaml:"max_concurrent"`
	} `yaml:"fetch"`
	Circuit struct {
		WindowSize       int      `yaml:"window_size"`
		FailureThreshold float64  `yaml:"failure_threshold"`
		Cooldown         Duration `yaml:"cooldown"`
	} `yaml:"circuit"`
	Cache struct {
		Backend        string   `yaml:"backend"` // sqlite | redis | none
		MemoryCapacity int      `yaml:"memory_capacity"`
		DiskTTL        Duration `yaml:"disk_ttl"`
		SQLitePath     string   `yaml:"sqlite_path"`
		Redis          struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Analysis struct {
		RiskFreeRate    float64 `yaml:"risk_free_rate"`
		MinHistoryDays  int     `yaml:"min_history_days"`
		FullHistoryDays int     `yaml:"full_history_days"`
	} `yaml:"analysis"`
	Database struct {
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Schedule struct {
		CleanupCron string `yaml:"cleanup_cron"`
		StatsCron   string `yaml:"stats_cron"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	// Try to load .env first (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("SOURCE_PROVIDER"); v != "" {
		cfg.Source.Provider = v
	}
	if v := os.Getenv("SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.MaxRetries = n
		}
	}
	if v := os.Getenv("MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.MaxConcurrent = n
		}
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Cache.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("DISK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DiskTTL = Duration(d)
		}
	}
	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		var rate float64
		if _, err := fmt.Sscanf(v, "%f", &rate); err == nil {
			cfg.Analysis.RiskFreeRate = rate
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("CRON_CLEANUP"); v != "" {
		cfg.Schedule.CleanupCron = v
	}
	if v := os.Getenv("CRON_STATS"); v != "" {
		cfg.Schedule.StatsCron = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = "yahoo"
	}
	if cfg.Fetch.MaxRetries == 0 {
		cfg.Fetch.MaxRetries = 5
	}
	if cfg.Fetch.BackoffBase == 0 {
		cfg.Fetch.BackoffBase = Duration(time.Second)
	}
	if cfg.Fetch.BackoffMultiplier == 0 {
		cfg.Fetch.BackoffMultiplier = 2
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = Duration(30 * time.Second)
	}
	if cfg.Fetch.BulkTimeout == 0 {
		cfg.Fetch.BulkTimeout = Duration(5 * time.Minute)
	}
	if cfg.Fetch.MaxConcurrent == 0 {
		cfg.Fetch.MaxConcurrent = 10
	}
	if cfg.Circuit.WindowSize == 0 {
		cfg.Circuit.WindowSize = 20
	}
	if cfg.Circuit.FailureThreshold == 0 {
		cfg.Circuit.FailureThreshold = 0.5
	}
	if cfg.Circuit.Cooldown == 0 {
		cfg.Circuit.Cooldown = Duration(30 * time.Second)
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Cache.MemoryCapacity == 0 {
		cfg.Cache.MemoryCapacity = 256
	}
	if cfg.Cache.DiskTTL == 0 {
		cfg.Cache.DiskTTL = Duration(24 * time.Hour)
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = "data/sharpefeed_cache.db"
	}
	if cfg.Analysis.RiskFreeRate == 0 {
		cfg.Analysis.RiskFreeRate = 0.015
	}
	if cfg.Analysis.MinHistoryDays == 0 {
		cfg.Analysis.MinHistoryDays = 252
	}
	if cfg.Analysis.FullHistoryDays == 0 {
		cfg.Analysis.FullHistoryDays = 756
	}
	if cfg.Schedule.CleanupCron == "" {
		cfg.Schedule.CleanupCron = "0 0 * * * *"
	}
	if cfg.Schedule.StatsCron == "" {
		cfg.Schedule.StatsCron = "0 */30 * * * *"
	}

	return cfg, nil
}

// Validate checks that all fields are inside their supported ranges.
func (c *Config) Validate() error {
	if c.Source.Provider != "yahoo" && c.Source.Provider != "mock" {
		return fmt.Errorf("source.provider must be yahoo or mock, got %q", c.Source.Provider)
	}
	if c.Fetch.MaxRetries < 0 || c.Fetch.MaxRetries > 10 {
		return fmt.Errorf("fetch.max_retries must be between 0 and 10")
	}
	if c.Fetch.BackoffBase.Std() <= 0 {
		return fmt.Errorf("fetch.backoff_base must be positive")
	}
	if c.Fetch.BackoffMultiplier < 1 {
		return fmt.Errorf("fetch.backoff_multiplier must be at least 1")
	}
	if t := c.Fetch.Timeout.Std(); t < 5*time.Second || t > 300*time.Second {
		return fmt.Errorf("fetch.timeout must be between 5s and 300s")
	}
	if c.Fetch.BulkTimeout.Std() <= 0 {
		return fmt.Errorf("fetch.bulk_timeout must be positive")
	}
	if c.Fetch.MaxConcurrent < 1 || c.Fetch.MaxConcurrent > 50 {
		return fmt.Errorf("fetch.max_concurrent must be between 1 and 50")
	}
	if c.Circuit.WindowSize < 1 {
		return fmt.Errorf("circuit.window_size must be at least 1")
	}
	if c.Circuit.FailureThreshold <= 0 || c.Circuit.FailureThreshold > 1 {
		return fmt.Errorf("circuit.failure_threshold must be in (0, 1]")
	}
	if c.Circuit.Cooldown.Std() <= 0 {
		return fmt.Errorf("circuit.cooldown must be positive")
	}
	switch c.Cache.Backend {
	case "sqlite", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be sqlite, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.MemoryCapacity < 1 {
		return fmt.Errorf("cache.memory_capacity must be at least 1")
	}
	if ttl := c.Cache.DiskTTL.Std(); ttl <= 0 || ttl > 168*time.Hour {
		return fmt.Errorf("cache.disk_ttl must be between 1ns and 168h")
	}
	if r := c.Analysis.RiskFreeRate; r < 0 || r > 0.3 {
		return fmt.Errorf("analysis.risk_free_rate must be between 0 and 0.3")
	}
	if c.Analysis.MinHistoryDays < 2 {
		return fmt.Errorf("analysis.min_history_days must be at least 2")
	}
	if c.Analysis.FullHistoryDays < c.Analysis.MinHistoryDays {
		return fmt.Errorf("analysis.full_history_days must be at least min_history_days")
	}
	return nil
}
