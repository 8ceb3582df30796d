// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported seeders.
const (
	SeederFlat       = "flat"
	SeederSimilarity = "similarity"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	DBDriver       string `koanf:"db_driver"`
	DBDSN          string `koanf:"db_dsn"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`

	// RedisAddr enables the Redis quota gate and notification sink when set.
	RedisAddr    string `koanf:"redis_addr"`
	RedisChannel string `koanf:"redis_channel"`

	// Daily quotas per action. Zero or negative means unlimited.
	StandardDailyQuota int `koanf:"standard_daily_quota"`
	PriorityDailyQuota int `koanf:"priority_daily_quota"`

	NotifyQueueSize int `koanf:"notify_queue_size"`
	NotifyWorkers   int `koanf:"notify_workers"`
	// NotifyDedupeSize bounds the notification id window.
	NotifyDedupeSize int `koanf:"notify_dedupe_size"`

	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutMS        int `koanf:"breaker_timeout_ms"`

	Seeder              string `koanf:"seeder"`
	DefaultInitialScore int    `koanf:"default_initial_score"`

	// PoolSize caps how many candidates the ranking engine scores.
	PoolSize int `koanf:"pool_size"`
	// ResultSize caps how many ranked candidates are returned.
	ResultSize int `koanf:"result_size"`

	WeightCompleteness float64 `koanf:"weight_completeness"`
	WeightRecency      float64 `koanf:"weight_recency"`
	WeightProximity    float64 `koanf:"weight_proximity"`
	VerifiedBonus      float64 `koanf:"verified_bonus"`

	// MissingCoordinatesPolicy is zero_distance or farthest.
	MissingCoordinatesPolicy string `koanf:"missing_coordinates_policy"`

	// MetricsEnabled turns off every exported metric when false.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshMS is the period of the system and queue gauge updaters.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		DBDriver:                 DriverSQLite,
		DBDSN:                    "file:tandem.db?_busy_timeout=5000",
		DBMaxOpenConns:           runtime.NumCPU() * 4,
		RedisChannel:             "tandem.notifications",
		StandardDailyQuota:       100,
		PriorityDailyQuota:       1,
		NotifyQueueSize:          10_000,
		NotifyWorkers:            runtime.NumCPU(),
		NotifyDedupeSize:         100_000,
		BreakerFailureThreshold:  5,
		BreakerTimeoutMS:         30_000,
		Seeder:                   SeederFlat,
		DefaultInitialScore:      50,
		PoolSize:                 100,
		ResultSize:               10,
		WeightCompleteness:       0.40,
		WeightRecency:            0.35,
		WeightProximity:          0.25,
		VerifiedBonus:            10,
		MissingCoordinatesPolicy: "zero_distance",
		MetricsEnabled:           true,
		MetricsRefreshMS:         10_000,
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return invalid("unknown db_driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return invalid("db_dsn must not be empty")
	}
	switch c.Seeder {
	case SeederFlat, SeederSimilarity:
	default:
		return invalid("unknown seeder %q", c.Seeder)
	}
	if c.DefaultInitialScore < 0 || c.DefaultInitialScore > 100 {
		return invalid("default_initial_score must be within [0,100], got %d", c.DefaultInitialScore)
	}
	if c.PoolSize <= 0 || c.ResultSize <= 0 {
		return invalid("pool_size and result_size must be positive")
	}
	if c.ResultSize > c.PoolSize {
		return invalid("result_size (%d) must not exceed pool_size (%d)", c.ResultSize, c.PoolSize)
	}
	if c.WeightCompleteness < 0 || c.WeightRecency < 0 || c.WeightProximity < 0 || c.VerifiedBonus < 0 {
		return invalid("ranking weights must not be negative")
	}
	switch c.MissingCoordinatesPolicy {
	case "zero_distance", "farthest":
	default:
		return invalid("unknown missing_coordinates_policy %q", c.MissingCoordinatesPolicy)
	}
	if c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0 || c.NotifyDedupeSize <= 0 {
		return invalid("notify queue, workers and dedupe size must be positive")
	}
	if c.MetricsRefreshMS <= 0 {
		return invalid("metrics_refresh_ms must be positive")
	}
	if c.BreakerFailureThreshold <= 0 || c.BreakerTimeoutMS <= 0 {
		return invalid("breaker threshold and timeout must be positive")
	}
	return nil
}
