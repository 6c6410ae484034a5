package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"atelier/api/internal/store"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return c, s
}

func testVersion(artifactID string, number int) store.ArtifactVersion {
	author := "usr_1"
	return store.ArtifactVersion{
		ID:            "ver_test",
		ArtifactID:    artifactID,
		VersionNumber: number,
		Content:       "<p>cached</p>",
		AuthorType:    store.AuthorUser,
		AuthorID:      &author,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestSetAndGetCurrent(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	want := testVersion("art_1", 3)
	c.SetCurrent(ctx, want)

	got, ok := c.GetCurrent(ctx, "art_1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.VersionNumber != 3 || got.Content != want.Content {
		t.Errorf("cached version mismatch: %+v", got)
	}
	if got.AuthorID == nil || *got.AuthorID != "usr_1" {
		t.Errorf("author id lost in round trip: %+v", got.AuthorID)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created at mismatch: %v vs %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestGetCurrentMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	if _, ok := c.GetCurrent(context.Background(), "art_unknown"); ok {
		t.Error("expected cache miss")
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	c.SetCurrent(ctx, testVersion("art_1", 1))
	c.Invalidate(ctx, "art_1")

	if _, ok := c.GetCurrent(ctx, "art_1"); ok {
		t.Error("invalidated entry must not be served")
	}
}

func TestEntriesExpire(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()
	c, err := NewRedisCache("redis://"+s.Addr(), time.Second)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	c.SetCurrent(ctx, testVersion("art_1", 1))

	s.FastForward(2 * time.Second)

	if _, ok := c.GetCurrent(ctx, "art_1"); ok {
		t.Error("expired entry must not be served")
	}
}

func TestEntriesAreIsolatedPerArtifact(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	c.SetCurrent(ctx, testVersion("art_1", 1))
	c.SetCurrent(ctx, testVersion("art_2", 9))
	c.Invalidate(ctx, "art_1")

	if _, ok := c.GetCurrent(ctx, "art_1"); ok {
		t.Error("art_1 should be gone")
	}
	if got, ok := c.GetCurrent(ctx, "art_2"); !ok || got.VersionNumber != 9 {
		t.Errorf("art_2 should survive: %+v ok=%v", got, ok)
	}
}
