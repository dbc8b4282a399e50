// Package cache keeps recently read posts in Redis. Entries are whole posts
// and are dropped, never patched, when the post changes. Every drop bumps a
// per-post generation, and a fill only lands if the generation it read before
// loading the post is still current.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
)

const (
	postKeyPrefix = "post:"
	genKeySuffix  = ":gen"

	// generationTTL outlives any single store read by a wide margin.
	generationTTL = 24 * time.Hour
)

// fillScript sets KEYS[1] only while KEYS[2] still holds ARGV[1].
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

type PostCache struct {
	redisClient *redis.Client
	expiration  time.Duration
}

func NewPostCache(redisClient *redis.Client, expiration time.Duration) *PostCache {
	return &PostCache{
		redisClient: redisClient,
		expiration:  expiration,
	}
}

// Get returns nil without error on a miss.
func (c *PostCache) Get(ctx context.Context, postID string) (*models.Post, error) {
	data, err := c.redisClient.Get(ctx, postKey(postID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var post models.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached post: %w", err)
	}
	return &post, nil
}

// Generation returns the post's current invalidation count. Read it before
// loading the post from the store and pass it to Fill.
func (c *PostCache) Generation(ctx context.Context, postID string) (int64, error) {
	gen, err := c.redisClient.Get(ctx, genKey(postID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Fill caches post unless it was invalidated after gen was read. It reports
// whether the entry was written.
func (c *PostCache) Fill(ctx context.Context, post *models.Post, gen int64) (bool, error) {
	data, err := encodePost(post)
	if err != nil {
		return false, err
	}
	keys := []string{postKey(post.ID), genKey(post.ID)}
	n, err := fillScript.Run(ctx, c.redisClient, keys, gen, data, c.expiration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to fill cache: %w", err)
	}
	return n == 1, nil
}

func (c *PostCache) Invalidate(ctx context.Context, postID string) error {
	_, err := c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(postID))
		pipe.Expire(ctx, genKey(postID), generationTTL)
		pipe.Del(ctx, postKey(postID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

func (c *PostCache) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}

func encodePost(post *models.Post) ([]byte, error) {
	cached := *post
	cached.Author = nil
	data, err := json.Marshal(&cached)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}
	return data, nil
}

func postKey(id string) string {
	return postKeyPrefix + id
}

func genKey(id string) string {
	return postKeyPrefix + id + genKeySuffix
}
