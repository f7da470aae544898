package config

import (
	"errors"
	"time"

	platformconfig "github.com/example/learning-platform/internal/platform/config"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	LogLevel    string

	// DatabaseURL is the Postgres DSN. Required in production; when unset
	// in development the service runs on in-memory stores.
	DatabaseURL string
	// RedisAddr is the Redis host:port for the read cache. Optional; when
	// unset the service uses the in-process cache.
	RedisAddr string
	NATSURL   string
	JWTSecret string

	CacheTTL       time.Duration
	EventQueueSize int
	MigrateOnStart bool
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:    platformconfig.Getenv("SERVICE_NAME", "progress"),
		HTTPAddr:       platformconfig.Getenv("HTTP_ADDR", ":8080"),
		LogLevel:       platformconfig.Getenv("LOG_LEVEL", "info"),
		DatabaseURL:    platformconfig.Getenv("DATABASE_URL", ""),
		RedisAddr:      platformconfig.Getenv("REDIS_ADDR", ""),
		NATSURL:        platformconfig.Getenv("NATS_URL", "nats://nats:4222"),
		JWTSecret:      platformconfig.Getenv("JWT_SECRET", ""),
		CacheTTL:       platformconfig.GetenvDuration("CACHE_TTL", 30*time.Second),
		EventQueueSize: platformconfig.GetenvInt("EVENT_QUEUE_SIZE", 256),
		MigrateOnStart: platformconfig.GetenvBool("MIGRATE_ON_START", true),
	}

	if platformconfig.IsProd() {
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			return Config{}, errors.New("JWT_SECRET is required in production")
		}
	}
	return cfg, nil
}
