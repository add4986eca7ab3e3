package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(addr, password string, db, poolSize, minIdleConns int) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})

	return &RedisClient{client: client}
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) GetInt64(ctx context.Context, key string) (int64, error) {
	return r.client.Get(ctx, key).Int64()
}

// Generation returns the counter stored at genKey, 0 when absent.
func (r *RedisClient) Generation(ctx context.Context, genKey string) (int64, error) {
	gen, err := r.client.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration writes key only while genKey still holds gen. It reports
// false without writing when the generation moved, including a bump that
// races with the write itself.
func (r *RedisClient) SetIfGeneration(ctx context.Context, genKey string, gen int64, key string, value interface{}, expiration time.Duration) (bool, error) {
	written := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if errors.Is(err, redis.Nil) {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, expiration)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return written, err
}

// Invalidate bumps every generation counter and deletes keys in one
// MULTI/EXEC, so no SetIfGeneration started earlier can land afterwards.
func (r *RedisClient) Invalidate(ctx context.Context, genKeys []string, keys ...string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, genKey := range genKeys {
			pipe.Incr(ctx, genKey)
		}
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	return err
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
