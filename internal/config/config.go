// Package config loads and validates the example crawler's configuration via
// Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs for the spindle binary.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Pool    PoolConfig    `mapstructure:"pool"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Seeds   []string      `mapstructure:"seeds"`
}

// EngineConfig governs the dispatch loop.
type EngineConfig struct {
	MaxInFlight   int `mapstructure:"max_in_flight"`
	RetryCeiling  int `mapstructure:"retry_ceiling"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int `mapstructure:"backoff_max_ms"`
	MaxDepth      int `mapstructure:"max_depth"`
}

// PoolConfig bounds the backend connection pool.
type PoolConfig struct {
	MaxConnections   int `mapstructure:"max_connections"`
	AcquireTimeoutMs int `mapstructure:"acquire_timeout_ms"`
}

// HTTPConfig configures the HTTP backend.
type HTTPConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
}

// RedisConfig selects an optional shared frontier. An empty address keeps
// the frontier in memory.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Key  string `mapstructure:"key"`
}

// ServerConfig controls the metrics endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPINDLE")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_in_flight", 8)
	v.SetDefault("engine.retry_ceiling", 3)
	v.SetDefault("engine.backoff_base_ms", 250)
	v.SetDefault("engine.backoff_max_ms", 5000)
	v.SetDefault("engine.max_depth", 2)
	v.SetDefault("pool.max_connections", 8)
	v.SetDefault("pool.acquire_timeout_ms", 30000)
	v.SetDefault("http.user_agent", "spindle-bot/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("http.rate_per_host", 2)
	v.SetDefault("http.burst", 1)
	v.SetDefault("redis.key", "spindle:frontier")
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations the engine would refuse anyway, so the
// failure happens with a readable message at load time.
func (c Config) Validate() error {
	if c.Engine.MaxInFlight <= 0 {
		return fmt.Errorf("engine.max_in_flight must be positive, got %d", c.Engine.MaxInFlight)
	}
	if c.Engine.RetryCeiling < 0 {
		return fmt.Errorf("engine.retry_ceiling must not be negative, got %d", c.Engine.RetryCeiling)
	}
	if c.Pool.MaxConnections <= 0 {
		return fmt.Errorf("pool.max_connections must be positive, got %d", c.Pool.MaxConnections)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// BackoffBase returns the configured base backoff as a duration.
func (c EngineConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the configured max backoff as a duration.
func (c EngineConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}
