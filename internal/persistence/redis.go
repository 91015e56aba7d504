package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/config"
)

const defaultKeyPrefix = "coop-import:"

// Redis holds the client backing the import preview store.
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewRedis builds the client. An unreachable server is logged, not fatal:
// only preview and confirm depend on it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	r := &Redis{Client: client, prefix: keyPrefix(cfg.KeyPrefix)}

	fields := []zap.Field{zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.String("key_prefix", r.prefix)}
	if err := r.Ping(ctx); err != nil {
		logger.Warn("preview store unreachable; imports cannot be previewed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("connected to preview store", fields...)
	}
	return r
}

func keyPrefix(p string) string {
	if p == "" {
		return defaultKeyPrefix
	}
	return p
}

// KeyPrefix is the namespace repositories prepend to their keys.
func (r *Redis) KeyPrefix() string {
	if r == nil {
		return defaultKeyPrefix
	}
	return r.prefix
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies the preview store is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("preview store not configured")
	}
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("preview store: %w", err)
	}
	return nil
}
