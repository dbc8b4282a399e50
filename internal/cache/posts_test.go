package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPostCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewPostCache(newRedis(t), time.Minute)
	require.NoError(t, c.Ping(ctx))

	miss, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	post := &models.Post{
		ID:         "p1",
		AuthorID:   "u1",
		Author:     &models.UserSummary{ID: "u1", Username: "alice"},
		Title:      "Bali Adventure",
		Location:   models.Location{Name: "Ubud", Coordinates: &models.Coordinates{Latitude: -8.5, Longitude: 115.26}},
		Tags:       []string{"bali", "rice"},
		Likes:      []models.Like{{UserID: "u2", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
		Visibility: models.VisibilityFollowers,
		Active:     true,
	}
	gen, err := c.Generation(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, gen)
	filled, err := c.Fill(ctx, post, gen)
	require.NoError(t, err)
	assert.True(t, filled)

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bali Adventure", got.Title)
	assert.Nil(t, got.Author)
	assert.Equal(t, models.VisibilityFollowers, got.Visibility)
	assert.True(t, got.Active)
	assert.True(t, got.LikedBy("u2"))
	require.NotNil(t, got.Location.Coordinates)
	assert.InDelta(t, 115.26, got.Location.Coordinates.Longitude, 1e-9)

	require.NoError(t, c.Invalidate(ctx, "p1"))
	got, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostCacheExpiration(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	c := NewPostCache(client, 30*time.Second)
	filled, err := c.Fill(ctx, &models.Post{ID: "p2"}, 0)
	require.NoError(t, err)
	require.True(t, filled)

	ttl, err := client.TTL(ctx, postKey("p2")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Second)
}

func TestFillAfterInvalidateIsDropped(t *testing.T) {
	ctx := context.Background()
	c := NewPostCache(newRedis(t), time.Minute)

	gen, err := c.Generation(ctx, "p3")
	require.NoError(t, err)
	stale := &models.Post{ID: "p3", Title: "before like"}

	// A like lands between the store read and the cache write.
	require.NoError(t, c.Invalidate(ctx, "p3"))

	filled, err := c.Fill(ctx, stale, gen)
	require.NoError(t, err)
	assert.False(t, filled)
	got, err := c.Get(ctx, "p3")
	require.NoError(t, err)
	assert.Nil(t, got)

	gen, err = c.Generation(ctx, "p3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gen)
	filled, err = c.Fill(ctx, &models.Post{ID: "p3", Title: "after like"}, gen)
	require.NoError(t, err)
	assert.True(t, filled)
	got, err = c.Get(ctx, "p3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "after like", got.Title)
}
