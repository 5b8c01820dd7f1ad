// Package redisstore adapts a Redis client to fiber's session Storage
// interface so browser sessions survive server restarts. When Redis is
// unreachable the server falls back to fiber's in-memory store.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brokersim/brokersim/internal/config"
)

type Store struct {
	client *redis.Client
}

func New(cfg *config.Config) (*Store, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Get implements fiber.Storage. A missing key returns nil, nil per the
// interface contract.
func (s *Store) Get(key string) ([]byte, error) {
	val, err := s.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	return val, nil
}

func (s *Store) Set(key string, val []byte, exp time.Duration) error {
	if err := s.client.Set(context.Background(), key, val, exp).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	return s.client.Del(context.Background(), key).Err()
}

func (s *Store) Reset() error {
	return s.client.FlushDB(context.Background()).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
