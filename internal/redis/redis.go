package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartdesk/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const dialTimeout = 3 * time.Second

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = redis.Nil

var errNotConnected = errors.New("redis client not initialized")

// Client is a thin wrapper around go-redis. A nil *Client is usable and makes
// every operation report errNotConnected, which lets callers treat redis as
// optional.
type Client struct {
	inner *redis.Client
}

// NewRedisClient connects using the redis section of the app config and
// verifies the connection with a bounded ping.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{inner: client}, nil
}

func (c *Client) ready() bool {
	return c != nil && c.inner != nil
}

// Set stores value under key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.ready() {
		return errNotConnected
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// Get reads key as a string. Missing keys yield ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.ready() {
		return "", errNotConnected
	}
	return c.inner.Get(ctx, key).Result()
}

// Del removes the given keys. Deleting nothing is not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.ready() {
		return errNotConnected
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Publish broadcasts payload on the named channel.
func (c *Client) Publish(ctx context.Context, channel string, payload interface{}) error {
	if !c.ready() {
		return errNotConnected
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel and returns the delivery channel
// together with a close func that ends the subscription.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	if !c.ready() {
		return nil, nil, errNotConnected
	}
	sub := c.inner.Subscribe(ctx, channel)
	return sub.Channel(), sub.Close, nil
}

// Close releases the connection pool. Safe on a nil client.
func (c *Client) Close() error {
	if !c.ready() {
		return nil
	}
	return c.inner.Close()
}

// Raw returns the underlying go-redis client for callers that need commands
// this wrapper does not cover.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
