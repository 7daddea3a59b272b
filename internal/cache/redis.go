package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the shared Redis tier.
type RedisConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password is optional.
	Password string

	// DB is the Redis database number.
	DB int

	// DialTimeout bounds connection establishment. Default: 5s.
	DialTimeout time.Duration

	// ReadTimeout / WriteTimeout bound individual commands. Default: 3s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// RedisRemote implements Remote using Redis.
type RedisRemote struct {
	client *redis.Client
}

// NewRedisRemote creates and pings a Redis client.
func NewRedisRemote(cfg RedisConfig) (*RedisRemote, error) {
	cfg.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisRemote{client: client}, nil
}

// Get retrieves raw bytes for a key.
func (r *RedisRemote) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores raw bytes with a TTL.
func (r *RedisRemote) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a key.
func (r *RedisRemote) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (r *RedisRemote) Close() error {
	return r.client.Close()
}

// Ensure RedisRemote implements Remote.
var _ Remote = (*RedisRemote)(nil)
