package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by Get for missing keys
var ErrNotFound = errors.New("redis: key not found")

type Service struct {
	client *redis.Client
}

// NewService connects using REDIS_URL. It returns nil when Redis is not
// configured or unreachable so callers can fall back to in-memory stores.
func NewService() *Service {
	url := config.GetRedisURL()

	if url == "" {
		log.Warn().Msg("Redis URL not configured - service will be unavailable")
		return nil
	}

	client := redis.NewClient(options(url, config.GetRedisPassword()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().
			Err(err).
			Str("addr", client.Options().Addr).
			Msg("Failed to establish Redis connection")
		_ = client.Close()
		return nil
	}

	return NewServiceWithClient(client)
}

func NewServiceWithClient(client *redis.Client) *Service {
	return &Service{client: client}
}

// options accepts both redis:// URLs and bare host:port addresses
func options(url, password string) *redis.Options {
	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err == nil {
			if password != "" {
				opts.Password = password
			}
			return opts
		}
		log.Warn().Err(err).Msg("Failed to parse REDIS_URL, treating it as an address")
	}
	return &redis.Options{
		Addr:     url,
		Password: password,
		DB:       0,
	}
}

// Client exposes the underlying connection for stream consumers
func (s *Service) Client() *redis.Client {
	return s.client
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Critical Redis SET operation failed")
		return err
	}
	return nil
}

// Get retrieves a value from Redis
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Msg("Critical Redis GET operation failed")
		return "", err
	}
	return val, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
