package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the part of *redis.Client RedisStore uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps the settings as a JSON string under "<prefix>:settings".
type RedisStore struct {
	client redisClient
	prefix string
}

func NewRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fhir-console"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient connects to url (redis://...) and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key() string { return r.prefix + ":settings" }

func (r *RedisStore) Load(ctx context.Context) (ServerSettings, error) {
	data, err := r.client.Get(ctx, r.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return ServerSettings{}, ErrNotFound
	}
	if err != nil {
		return ServerSettings{}, fmt.Errorf("load settings: %w", err)
	}
	var s ServerSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return ServerSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s ServerSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.client.Set(ctx, r.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
