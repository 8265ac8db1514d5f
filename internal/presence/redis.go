package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the registry with a shared redis instance so multiple
// server processes agree on who is online.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses the URL (redis://[:password@]host:port/db), applies
// sane pool settings and verifies the connection with a ping.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	return s.client.Decr(ctx, key).Result()
}

func (s *RedisStore) HSet(ctx context.Context, hash, field, value string) error {
	return s.client.HSet(ctx, hash, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, hash, field string) (string, bool, error) {
	value, err := s.client.HGet(ctx, hash, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) HDel(ctx context.Context, hash, field string) error {
	return s.client.HDel(ctx, hash, field).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.client.Keys(ctx, prefix+"*").Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
