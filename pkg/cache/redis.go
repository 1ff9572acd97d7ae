package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

// ConfigFromEnv reads REDIS_URL. An empty URL means no cache is configured.
func ConfigFromEnv() Config {
	return Config{URL: os.Getenv("REDIS_URL"), Timeout: 3 * time.Second}
}

// Enabled reports whether a redis URL was provided.
func (c Config) Enabled() bool { return c.URL != "" }

// Connect configures a Redis client and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
