package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/relay"
	"github.com/mcdev12/livescore/go/internal/transport/ws"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Connection settings come from the
// environment; engine tuning may also come from a YAML file at CONFIG_PATH.
type Config struct {
	Env            string
	Port           string
	LogLevel       string
	StoreDriver    string
	RedisURL       string
	NATSURL        string
	JWTSecret      string
	JWTIssuer      string
	RequireOwner   bool
	AllowedOrigins []string
	// DevSeedCode seeds one joinable code into the memory store.
	DevSeedCode string

	Engine  gateway.Config
	Persist persist.Config
	Hub     ws.Config
	Relay   relay.Config
}

// fileConfig is the YAML layout. Zero values leave the defaults in place.
type fileConfig struct {
	Engine struct {
		SessionTTL    time.Duration `yaml:"session_ttl"`
		TickInterval  time.Duration `yaml:"tick_interval"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		ExpireWorkers int           `yaml:"expire_workers"`
		DedupeWindow  time.Duration `yaml:"dedupe_window"`
		RoomQueueSize int           `yaml:"room_queue_size"`
	} `yaml:"engine"`
	Persist struct {
		Shards     int           `yaml:"shards"`
		QueueSize  int           `yaml:"queue_size"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		MaxParked  int           `yaml:"max_parked"`
	} `yaml:"persist"`
	Hub struct {
		SendBufferSize int   `yaml:"send_buffer_size"`
		MaxMessageSize int64 `yaml:"max_message_size"`
	} `yaml:"hub"`
	Relay struct {
		BufferSize int      `yaml:"buffer_size"`
		Skip       []string `yaml:"skip"`
	} `yaml:"relay"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func configFromEnv() *Config {
	cfg := &Config{
		Env:            getEnv("APP_ENV", "dev"),
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		RedisURL:       getEnv("REDIS_URL", ""),
		NATSURL:        getEnv("NATS_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", ""),
		RequireOwner:   getEnvAsBool("AUTH_REQUIRE_OWNER", false),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		DevSeedCode:    getEnv("DEV_SEED_CODE", ""),
		Engine:         gateway.DefaultConfig(),
		Persist:        persist.DefaultConfig(),
		Hub:            ws.DefaultConfig(),
		Relay:          relay.DefaultConfig(),
	}
	cfg.Engine.SessionTTL = getEnvAsDuration("SESSION_TTL", cfg.Engine.SessionTTL)
	cfg.Persist.MaxRetries = getEnvAsInt("PERSIST_MAX_RETRIES", cfg.Persist.MaxRetries)
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := configFromEnv()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	file.apply(cfg)

	return cfg, nil
}

func (f *fileConfig) apply(cfg *Config) {
	setDuration(&cfg.Engine.SessionTTL, f.Engine.SessionTTL)
	setDuration(&cfg.Engine.TickInterval, f.Engine.TickInterval)
	setDuration(&cfg.Engine.SweepInterval, f.Engine.SweepInterval)
	setInt(&cfg.Engine.ExpireWorkers, f.Engine.ExpireWorkers)
	setDuration(&cfg.Engine.DedupeWindow, f.Engine.DedupeWindow)
	setInt(&cfg.Engine.RoomQueueSize, f.Engine.RoomQueueSize)

	setInt(&cfg.Persist.Shards, f.Persist.Shards)
	setInt(&cfg.Persist.QueueSize, f.Persist.QueueSize)
	setInt(&cfg.Persist.MaxRetries, f.Persist.MaxRetries)
	setDuration(&cfg.Persist.RetryDelay, f.Persist.RetryDelay)
	setInt(&cfg.Persist.MaxParked, f.Persist.MaxParked)

	setInt(&cfg.Hub.SendBufferSize, f.Hub.SendBufferSize)
	if f.Hub.MaxMessageSize > 0 {
		cfg.Hub.MaxMessageSize = f.Hub.MaxMessageSize
	}

	setInt(&cfg.Relay.BufferSize, f.Relay.BufferSize)
	if f.Relay.Skip != nil {
		cfg.Relay.Skip = f.Relay.Skip
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
