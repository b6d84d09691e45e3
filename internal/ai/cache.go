package ai

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const defaultCacheTTL = 7 * 24 * time.Hour

// CachedProvider wraps a Provider with a Redis-backed response cache. A crash
// mid-paper means the next run re-issues the same extraction calls; caching
// them keeps the re-run from billing twice for identical prompts.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

// NewCachedProvider creates a caching decorator around inner. A zero ttl
// falls back to seven days.
func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{inner: inner, client: client, ttl: ttl}
}

func (c *CachedProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	key, err := cacheKey(req)
	if err != nil {
		return c.inner.Complete(ctx, req)
	}

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var resp CompletionResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			slog.Debug("completion cache hit", "task", req.Task.String())
			return resp, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("completion cache read failed", "error", err)
	}

	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		return CompletionResponse{}, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("completion cache write failed", "error", err)
		}
	}
	return resp, nil
}

func (c *CachedProvider) HealthCheck(ctx context.Context) error {
	return c.inner.HealthCheck(ctx)
}

// cacheKey hashes the full request so any change to model, prompt, or file
// reference misses the cache.
func cacheKey(req CompletionRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	sum := blake2b.Sum256(data)
	return "ai:completion:" + hex.EncodeToString(sum[:]), nil
}
