package cache

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/logging"
)

// Redis is a Cache backed by a Redis server. Redis failures are logged and
// read as misses.
type Redis struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisClient connects to the server in cfg. It returns nil when
// cfg.Addr is empty or the server does not answer a ping within two seconds;
// callers then fall back to an in-memory cache.
func NewRedisClient(cfg config.RedisConfig, useTLS bool) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil
	}
	return client
}

// New returns a Redis cache over rdb, or a Memory cache when rdb is nil.
func New(rdb *redis.Client, logger *slog.Logger) Cache {
	if rdb == nil {
		return NewMemory()
	}
	return &Redis{rdb: rdb, logger: logging.Component(logger, "cache")}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	bs, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("redis get", "key", key, "error", err)
		return nil, false
	}
	return bs, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.rdb.SetEx(ctx, key, val, ttl).Err(); err != nil {
		r.logger.Warn("redis set", "key", key, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, prefix string) {
	iter := r.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis scan", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("redis del", "prefix", prefix, "error", err)
	}
}
