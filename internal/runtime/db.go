package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/webbuilder/config"
	"github.com/mohammad-safakhou/webbuilder/internal/store"
)

// OpenStore connects to Postgres, bounded by the configured timeout.
func OpenStore(ctx context.Context, cfg config.PostgresConfig) (*store.Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return st, nil
}

// OpenRedis returns nil, nil when Redis is not configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr(), err)
	}
	return rdb, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
