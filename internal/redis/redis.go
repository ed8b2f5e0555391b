package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"metaphorlab/internal/history"
)

// commander is the slice of go-redis the store uses.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL applies to history snapshots and the seen set. Zero keeps them.
	TTL time.Duration
}

type Client struct {
	rdb    commander
	prefix string
	ttl    time.Duration
}

func New(opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return newClient(rdb, opts), nil
}

func newClient(rdb commander, opts Options) *Client {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "metaphorlab"
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: opts.TTL}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// History snapshots
func (c *Client) SaveHistory(ctx context.Context, name string, snap history.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key("history", name), data, c.ttl).Err()
}

// LoadHistory returns history.ErrSnapshotNotFound when nothing was saved
// under name.
func (c *Client) LoadHistory(ctx context.Context, name string) (history.Snapshot, error) {
	var snap history.Snapshot

	data, err := c.rdb.Get(ctx, c.key("history", name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, history.ErrSnapshotNotFound
	}
	if err != nil {
		return snap, err
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("redis: decode history %s: %w", name, err)
	}
	return snap, nil
}

// Feed management
func (c *Client) AddFeed(ctx context.Context, url string) error {
	return c.rdb.SAdd(ctx, c.key("feeds"), url).Err()
}

func (c *Client) RemoveFeed(ctx context.Context, url string) error {
	return c.rdb.SRem(ctx, c.key("feeds"), url).Err()
}

func (c *Client) GetFeeds(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, c.key("feeds")).Result()
}

// MarkSeen records an ingested item id and reports whether it was new.
func (c *Client) MarkSeen(ctx context.Context, id string) (bool, error) {
	key := c.key("seen")
	added, err := c.rdb.SAdd(ctx, key, id).Result()
	if err != nil {
		return false, err
	}
	if added > 0 && c.ttl > 0 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			// Roll back the claim so the failure reads as "not recorded".
			_ = c.rdb.SRem(ctx, key, id).Err()
			return false, err
		}
	}
	return added > 0, nil
}

// Unmark forgets an item id so the next poll picks it up again.
func (c *Client) Unmark(ctx context.Context, id string) error {
	return c.rdb.SRem(ctx, c.key("seen"), id).Err()
}
