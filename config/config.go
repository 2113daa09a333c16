package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	Platform          string
	Mode              string
	Limit             int
	MaxPages          int
	Parallelism       int
	Timeout           time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	BlockedBackoff    time.Duration
	Jitter            float64
	RequestsPerSecond float64
	Burst             int
	BlockCooldown     time.Duration
	DedupeMaxSize     int
	RulesFile         string
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	MetricsAddr       string
	MemcacheAddr      string
	RedisAddr         string
	RedisStream       string
	Verbose           bool
}

// DefaultConfig returns conservative defaults for the supported marketplaces.
func DefaultConfig() *Config {
	return &Config{
		Platform:          "amazon",
		Mode:              "listing",
		Limit:             30,
		MaxPages:          20,
		Parallelism:       1,
		Timeout:           10 * time.Second,
		MaxAttempts:       3,
		RetryBackoff:      5 * time.Second,
		RetryBackoffMax:   time.Minute,
		BlockedBackoff:    10 * time.Second,
		Jitter:            0.1,
		RequestsPerSecond: 0,
		Burst:             1,
		BlockCooldown:     10 * time.Minute,
		DedupeMaxSize:     10000,
		OutputFormat:      "csv",
		RedisStream:       "scraper:events",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	// Marketplace names are checked against the source registry by the caller.
	if strings.TrimSpace(c.Platform) == "" {
		return fmt.Errorf("platform is required")
	}
	switch strings.ToLower(c.Mode) {
	case "listing", "detail", "rank", "product":
	default:
		return fmt.Errorf("type must be listing, detail, rank or product, got %q", c.Mode)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("num products must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.BlockedBackoff < 0 {
		return fmt.Errorf("blocked backoff cannot be negative")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1)")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting")
	}
	if c.BlockCooldown < 0 {
		return fmt.Errorf("block cooldown cannot be negative")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.OutputFile != "" && c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.RedisAddr != "" && c.RedisStream == "" {
		return fmt.Errorf("redis stream cannot be empty when redis is enabled")
	}

	return nil
}
