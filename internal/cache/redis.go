// Package cache provides a Redis-backed cache for current artifact
// content, so repeated reads of a hot artifact skip the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"atelier/api/internal/store"
)

// entry is the cached representation of a current version
type entry struct {
	VersionID     string    `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	Content       string    `json:"content"`
	AuthorType    string    `json:"author_type"`
	AuthorID      *string   `json:"author_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RedisCache caches the current version per artifact. Every method is
// best-effort: failures are logged and reads fall through to the store.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{
		client: client,
		prefix: "artifact:current:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(artifactID string) string {
	return c.prefix + artifactID
}

// GetCurrent returns the cached current version, if any.
func (c *RedisCache) GetCurrent(ctx context.Context, artifactID string) (store.ArtifactVersion, bool) {
	jsonData, err := c.client.Get(ctx, c.key(artifactID)).Result()
	if err == redis.Nil {
		return store.ArtifactVersion{}, false
	}
	if err != nil {
		log.Printf("cache get %s: %v", artifactID, err)
		return store.ArtifactVersion{}, false
	}

	var e entry
	if err := json.Unmarshal([]byte(jsonData), &e); err != nil {
		log.Printf("cache decode %s: %v", artifactID, err)
		return store.ArtifactVersion{}, false
	}
	return store.ArtifactVersion{
		ID:            e.VersionID,
		ArtifactID:    artifactID,
		VersionNumber: e.VersionNumber,
		Content:       e.Content,
		AuthorType:    e.AuthorType,
		AuthorID:      e.AuthorID,
		CreatedAt:     e.CreatedAt,
	}, true
}

// SetCurrent stores the version as the artifact's current content.
func (c *RedisCache) SetCurrent(ctx context.Context, version store.ArtifactVersion) {
	jsonData, err := json.Marshal(entry{
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		Content:       version.Content,
		AuthorType:    version.AuthorType,
		AuthorID:      version.AuthorID,
		CreatedAt:     version.CreatedAt,
	})
	if err != nil {
		log.Printf("cache encode %s: %v", version.ArtifactID, err)
		return
	}
	if err := c.client.Set(ctx, c.key(version.ArtifactID), jsonData, c.ttl).Err(); err != nil {
		log.Printf("cache set %s: %v", version.ArtifactID, err)
	}
}

// Invalidate drops the artifact's cached content.
func (c *RedisCache) Invalidate(ctx context.Context, artifactID string) {
	if err := c.client.Del(ctx, c.key(artifactID)).Err(); err != nil {
		log.Printf("cache invalidate %s: %v", artifactID, err)
	}
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
