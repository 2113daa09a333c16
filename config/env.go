package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// FromEnv overlays SCRAPER_* environment variables on c.
func (c *Config) FromEnv() error {
	if v, ok := EnvString("SCRAPER_PLATFORM"); ok {
		c.Platform = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_TYPE"); ok {
		c.Mode = strings.ToLower(v)
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_NUM_PRODUCTS", &c.Limit},
		{"SCRAPER_PAGES", &c.MaxPages},
		{"SCRAPER_PARALLEL", &c.Parallelism},
		{"SCRAPER_MAX_ATTEMPTS", &c.MaxAttempts},
		{"SCRAPER_BURST", &c.Burst},
	}
	for _, item := range ints {
		v, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = v
		}
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_TIMEOUT", &c.Timeout},
		{"SCRAPER_RETRY_BACKOFF", &c.RetryBackoff},
		{"SCRAPER_RETRY_BACKOFF_MAX", &c.RetryBackoffMax},
		{"SCRAPER_BLOCKED_BACKOFF", &c.BlockedBackoff},
		{"SCRAPER_BLOCK_COOLDOWN", &c.BlockCooldown},
	}
	for _, item := range durations {
		v, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = v
		}
	}
	if v, ok, err := EnvFloat("SCRAPER_RPS"); err != nil {
		return err
	} else if ok {
		c.RequestsPerSecond = v
	}
	if v, ok, err := EnvFloat("SCRAPER_JITTER"); err != nil {
		return err
	} else if ok {
		c.Jitter = v
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"SCRAPER_RULES", &c.RulesFile},
		{"SCRAPER_OUTPUT", &c.OutputFile},
		{"SCRAPER_FORMAT", &c.OutputFormat},
		{"SCRAPER_METRICS_ADDR", &c.MetricsAddr},
		{"SCRAPER_MEMCACHE_ADDR", &c.MemcacheAddr},
		{"SCRAPER_REDIS_ADDR", &c.RedisAddr},
		{"SCRAPER_REDIS_STREAM", &c.RedisStream},
	}
	for _, item := range strs {
		if v, ok := EnvString(item.key); ok {
			*item.dst = v
		}
	}
	return nil
}
