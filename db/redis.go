package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisPrefix namespaces session keys in a shared Redis.
const DefaultRedisPrefix = "wanderlist:"

type redisStorage struct {
	rdb    *redis.Client
	prefix string
}

// ConnectRedis creates a Redis-backed Storage and pings the server.
func ConnectRedis(ctx context.Context, addr, password, prefix string) (Storage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Error().Err(err).Str("address", addr).Msg("Failed to ping Redis")
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("address", addr).Msg("Redis connection established successfully")
	return NewRedisStorage(rdb, prefix), nil
}

// NewRedisStorage wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStorage(rdb *redis.Client, prefix string) Storage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &redisStorage{rdb: rdb, prefix: prefix}
}

func (r *redisStorage) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *redisStorage) Write(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *redisStorage) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

// Apply sends the batch as one MULTI/EXEC transaction.
func (r *redisStorage) Apply(ctx context.Context, batch Batch) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range batch.Writes {
			pipe.Set(ctx, r.prefix+key, value, 0)
		}
		if len(batch.Removes) > 0 {
			keys := make([]string, len(batch.Removes))
			for i, key := range batch.Removes {
				keys[i] = r.prefix + key
			}
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	return err
}

func (r *redisStorage) Close() error { return r.rdb.Close() }
