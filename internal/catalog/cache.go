package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

func trackKey(id string) string { return "rr:track:" + id }

// Cache is a redis read-through layer in front of the repository.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached tracks among ids keyed by id.
func (c *Cache) Get(ctx context.Context, ids []string) (map[string]playlist.Track, error) {
	out := make(map[string]playlist.Track, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = trackKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t playlist.Track
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		out[ids[i]] = t
	}
	return out, nil
}

func (c *Cache) Put(ctx context.Context, tracks []playlist.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range tracks {
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			pipe.Set(ctx, trackKey(t.ID), data, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Forget drops ids so the next read goes to the repository.
func (c *Cache) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = trackKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
