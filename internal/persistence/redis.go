package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/config"
)

const defaultPingTimeout = 500 * time.Millisecond

// Redis holds the client behind the outlet scope cache.
type Redis struct {
	Client      *redis.Client
	pingTimeout time.Duration
}

// NewRedis builds the scope cache client and checks it once. An unreachable
// server is logged, not fatal; the client redials on later commands.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	r := &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		pingTimeout: timeout,
	}

	if err := r.Ping(ctx); err != nil {
		logger.Warn("outlet scope cache unreachable, serving scopes from the database",
			zap.String("addr", cfg.Addr), zap.Duration("timeout", timeout), zap.Error(err))
	} else {
		logger.Info("outlet scope cache connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return r
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Enabled reports whether a client was built.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Ping checks connectivity, bounded by the configured timeout even when ctx
// carries a longer deadline.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis not configured")
	}
	timeout := r.pingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}
