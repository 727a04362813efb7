package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores query results for a fixed TTL.
type Cache interface {
	// Get decodes a cached entry into dest. It returns false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// FileCache keeps one JSON file per key and expires entries by mod time.
type FileCache struct {
	dir string
	ttl time.Duration
}

// NewFileCache creates a new file cache in the given directory.
func NewFileCache(dir string, ttl time.Duration) *FileCache {
	return &FileCache{dir: dir, ttl: ttl}
}

// Get retrieves a cached value if it exists and hasn't expired. Unreadable or
// corrupt entries count as misses.
func (fc *FileCache) Get(_ context.Context, key string, dest any) (bool, error) {
	path := fc.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}

	if time.Since(info.ModTime()) > fc.ttl {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}

	return true, nil
}

// Set stores a value in the cache.
func (fc *FileCache) Set(_ context.Context, key string, value any) error {
	if err := os.MkdirAll(fc.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}

	if err := os.WriteFile(fc.path(key), data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Clear removes all cached data.
func (fc *FileCache) Clear() error {
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if err := os.Remove(filepath.Join(fc.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

// RedisCache stores entries in Redis under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds connection settings for RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "hostbalance:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get retrieves and decodes a cached value.
func (rc *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return true, nil
}

// Set encodes and stores a value with the cache TTL.
func (rc *RedisCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	if err := rc.client.Set(ctx, rc.prefix+key, data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
