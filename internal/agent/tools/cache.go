package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audience-andy/server/internal/agent/model"
	errx "github.com/audience-andy/server/internal/core/error"
	"github.com/audience-andy/server/internal/metrics"
	logx "github.com/audience-andy/server/pkg/logger"
)

// CachedTool serves repeated calls with identical parameters from Redis.
// Only successful results are stored; Redis faults fall through to the
// wrapped tool.
type CachedTool struct {
	Tool
	rdb redis.Cmdable
	ttl time.Duration
}

// Cached wraps t with a Redis result cache. A nil client returns t unchanged.
func Cached(t Tool, rdb redis.Cmdable, ttl time.Duration) Tool {
	if rdb == nil || t == nil {
		return t
	}
	return &CachedTool{Tool: t, rdb: rdb, ttl: ttl}
}

func (c *CachedTool) cacheKey(params map[string]any) (string, error) {
	// json.Marshal sorts map keys, so equal params hash equally.
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("tool:%s:%s", c.Name(), hex.EncodeToString(sum[:])), nil
}

func (c *CachedTool) Execute(ctx context.Context, params map[string]any) (model.ToolResult, error) {
	key, err := c.cacheKey(params)
	if err != nil {
		logx.Warn().Err(err).Str("tool", c.Name()).Msg("failed to build cache key")
		return c.Tool.Execute(ctx, params)
	}

	if res, ok := c.lookup(ctx, key); ok {
		metrics.ToolCacheLookups.WithLabelValues(c.Name(), "hit").Inc()
		logx.Debug().Str("tool", c.Name()).Str("key", key).Msg("tool result served from cache")
		return res, nil
	}
	metrics.ToolCacheLookups.WithLabelValues(c.Name(), "miss").Inc()

	res, err := c.Tool.Execute(ctx, params)
	if err != nil || !res.Success {
		return res, err
	}
	c.store(ctx, key, res)
	return res, nil
}

func (c *CachedTool) lookup(ctx context.Context, key string) (model.ToolResult, bool) {
	var res model.ToolResult
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Error().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to read tool result from redis")
		}
		return res, false
	}
	if err := json.Unmarshal(raw, &res); err != nil || !res.Success {
		logx.Warn().Str("key", key).Msg("discarding unreadable cached tool result")
		return model.ToolResult{}, false
	}
	return res, true
}

func (c *CachedTool) store(ctx context.Context, key string, res model.ToolResult) {
	b, err := json.Marshal(res)
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to marshal tool result")
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logx.Error().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to cache tool result in redis")
	}
}

// Purge drops every cached result of the wrapped tool.
func (c *CachedTool) Purge(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("tool:%s:*", c.Name()), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return errx.WrapRedis(err)
		}
	}
	if err := iter.Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (c *CachedTool) descriptor() Descriptor {
	return describe(c.Tool)
}
