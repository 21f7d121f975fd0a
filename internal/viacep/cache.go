package viacep

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/metrics"
)

// Cache is the subset of redis.Client the lookup cache needs.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedLookup is a read-through Redis cache in front of a Lookup.
// Only terminal semantic outcomes (success, not-found) are cached;
// FETCH_ERROR outcomes are transient and always go back upstream.
// Cache failures degrade to a plain upstream fetch.
type CachedLookup struct {
	next   Lookup
	client Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedLookup wraps next with a cache on the given Redis client.
func NewCachedLookup(next Lookup, client Cache, ttl time.Duration, logger *zap.Logger) *CachedLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(code string) string {
	return "viacep:" + code
}

// Fetch answers from the cache when possible, otherwise delegates and
// stores the outcome.
func (c *CachedLookup) Fetch(ctx context.Context, code string) cep.Outcome {
	raw, err := c.client.Get(ctx, cacheKey(code)).Bytes()
	if err == nil {
		var cached cep.Outcome
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			metrics.ObserveCacheHit()
			return cached
		}
		// Unreadable entry; fall through and overwrite it.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("lookup cache read failed", zap.String("cep", code), zap.Error(err))
	}

	outcome := c.next.Fetch(ctx, code)

	if outcome.Success || (outcome.Failure != nil && outcome.Failure.Kind == cep.KindNotFound) {
		if raw, jsonErr := json.Marshal(outcome); jsonErr == nil {
			if setErr := c.client.Set(ctx, cacheKey(code), raw, c.ttl).Err(); setErr != nil {
				c.logger.Warn("lookup cache write failed", zap.String("cep", code), zap.Error(setErr))
			}
		}
	}
	return outcome
}
