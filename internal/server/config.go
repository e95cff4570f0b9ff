// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the relay service.
package server

import (
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by NewConfigFromEnv.
const EnvPrefix = "RELAY_"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// Config holds the server configuration settings.
type Config struct {
	Addr           string   `env:"ADDR"`
	Path           string   `env:"WS_PATH"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	// MaxMessageSize caps an aggregated inbound message, fragments included.
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE"`
	RateLimit      RateLimitConfig

	// Acceptors is the number of accept loops sharing the listener.
	Acceptors int `env:"ACCEPTORS"`
	// Workers is the number of goroutines processing decoded messages. Each
	// connection is pinned to one worker.
	Workers     int `env:"WORKERS"`
	WorkerQueue int `env:"WORKER_QUEUE"`
	SendQueue   int `env:"SEND_QUEUE"`

	PruneInterval   time.Duration `env:"PRUNE_INTERVAL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// JWTSecret enables bearer validation at the upgrade boundary when set.
	JWTSecret string `env:"JWT_SECRET"`
	// RoomDBPath enables the SQLite room directory when set.
	RoomDBPath string `env:"ROOM_DB"`
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0) * 2
}

func defaultConfig() Config {
	return Config{
		Addr: ":8080",
		Path: "/ws",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		Acceptors:       1,
		Workers:         defaultWorkers(),
		WorkerQueue:     256,
		SendQueue:       256,
		PruneInterval:   time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from RELAY_* environment variables.
// Unset variables keep their default values.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize replaces missing or invalid values with defaults.
func (c *Config) Sanitize() {
	def := defaultConfig()

	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Path == "" || c.Path[0] != '/' {
		c.Path = def.Path
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.Acceptors <= 0 {
		c.Acceptors = def.Acceptors
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.WorkerQueue <= 0 {
		c.WorkerQueue = def.WorkerQueue
	}
	if c.SendQueue <= 0 {
		c.SendQueue = def.SendQueue
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = def.PruneInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
}
