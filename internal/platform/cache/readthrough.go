package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReadThrough caches JSON document listings keyed by (org, status) and falls
// back to the loader on miss. Mutating operations call Invalidate for every
// key space they touch; there is no implicit expiry beyond the TTL.
type ReadThrough struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewReadThrough instantiates the cache helper. A nil client degrades to
// loader-only behaviour, which keeps tests and single-node deploys simple.
func NewReadThrough(client *redis.Client, prefix string, ttl time.Duration) *ReadThrough {
	return &ReadThrough{client: client, prefix: prefix, ttl: ttl}
}

// Key composes the cache key for an organization and status filter.
func (c *ReadThrough) Key(orgID int64, status string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, orgID, status)
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *ReadThrough) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loadInto(ctx, dest, loader)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(raw, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(encoded, dest)
}

// Invalidate drops every cached listing for the organization.
func (c *ReadThrough) Invalidate(ctx context.Context, orgID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s:%d:*", c.prefix, orgID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func loadInto(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dest)
}
