package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/asergian/beacon-sub001/interfaces"
)

// ConnectRedis creates a client from a redis:// URL and verifies connectivity.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return rdb, nil
}

type redisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) interfaces.CacheBackend {
	return &redisBackend{rdb: rdb}
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}

func (b *redisBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	val, err := b.rdb.Get(ctx, redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (b *redisBackend) GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = redisKey(namespace, key)
	}

	values, err := b.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if s, ok := value.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (b *redisBackend) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, redisKey(namespace, key), value, ttl).Err()
}

func (b *redisBackend) PutMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	_, err := b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, redisKey(namespace, key), value, ttl)
		}
		return nil
	})
	return err
}

func (b *redisBackend) Delete(ctx context.Context, namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = redisKey(namespace, key)
	}
	return b.rdb.Del(ctx, redisKeys...).Err()
}

// SetCounters writes every field with HSET and refreshes the hash ttl in one transaction.
func (b *redisBackend) SetCounters(ctx context.Context, namespace, key string, fields []string, value int64, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	hashKey := redisKey(namespace, key)
	args := make([]interface{}, 0, 2*len(fields))
	for _, field := range fields {
		args = append(args, field, value)
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, args...)
		if ttl > 0 {
			pipe.Expire(ctx, hashKey, ttl)
		}
		return nil
	})
	return err
}

func (b *redisBackend) IncrCounters(ctx context.Context, namespace, key string, fields []string, delta int64) (map[string]int64, error) {
	out := make(map[string]int64, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	hashKey := redisKey(namespace, key)
	cmds := make([]*redis.IntCmd, len(fields))
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, field := range fields {
			cmds[i] = pipe.HIncrBy(ctx, hashKey, field, delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, cmd := range cmds {
		out[fields[i]] = cmd.Val()
	}
	return out, nil
}

func (b *redisBackend) GetCounters(ctx context.Context, namespace, key string) (map[string]int64, error) {
	values, err := b.rdb.HGetAll(ctx, redisKey(namespace, key)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(values))
	for field, value := range values {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

func (b *redisBackend) DeleteCounters(ctx context.Context, namespace, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.rdb.HDel(ctx, redisKey(namespace, key), fields...).Err()
}

func (b *redisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
