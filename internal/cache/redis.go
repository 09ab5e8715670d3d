package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisHashPrefix   = "taqs:cache:"
	redisNamespaceSet = "taqs:cache:namespaces"
)

// RedisStore implements Store on Redis. Each namespace is a hash keyed by
// request URL, plus a set tracking which namespaces exist so activation can
// enumerate and delete stale ones.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func hashKey(namespace string) string {
	return redisHashPrefix + namespace
}

// Get retrieves and decodes the entry for key in namespace.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (Entry, bool, error) {
	data, err := s.client.HGet(ctx, hashKey(namespace), key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached entry %s/%s: %w", namespace, key, err)
	}
	return e, true, nil
}

// Put encodes and stores the entry, registering the namespace.
func (s *RedisStore) Put(ctx context.Context, namespace, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hashKey(namespace), key, data)
	pipe.SAdd(ctx, redisNamespaceSet, namespace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Keys lists all keys stored in the namespace.
func (s *RedisStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys %s: %w", namespace, err)
	}
	return keys, nil
}

// Namespaces lists every registered namespace.
func (s *RedisStore) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, redisNamespaceSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis namespaces: %w", err)
	}
	return names, nil
}

// DeleteNamespace removes the namespace hash and unregisters it.
func (s *RedisStore) DeleteNamespace(ctx context.Context, namespace string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, hashKey(namespace))
	pipe.SRem(ctx, redisNamespaceSet, namespace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Ping checks Redis reachability, for health checks.
func (s *RedisStore) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
