package database

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/axiom/sqlagent/internal/models"
)

// Redis wraps the Redis client
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// ResultCache keeps accepted results keyed by workspace, dialect and the
// normalised question.
type ResultCache struct {
	redis  *Redis
	ttl    time.Duration
	logger *zap.Logger
}

// NewResultCache creates a result cache
func NewResultCache(r *Redis, ttl time.Duration, logger *zap.Logger) *ResultCache {
	return &ResultCache{redis: r, ttl: ttl, logger: logger}
}

// CacheKey derives the cache key of a question.
func CacheKey(workspaceID, dialect, question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := blake2b.Sum256([]byte(workspaceID + "\x00" + dialect + "\x00" + normalized))
	return "sqlagent:result:" + hex.EncodeToString(sum[:])
}

// Lookup returns a cached result. Cache errors count as misses.
func (c *ResultCache) Lookup(ctx context.Context, workspaceID, dialect, question string) (*models.Result, bool) {
	raw, err := c.redis.client.Get(ctx, CacheKey(workspaceID, dialect, question)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Result cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var res models.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.Error(err))
		return nil, false
	}
	res.Cached = true
	return &res, true
}

// Store caches res.
func (c *ResultCache) Store(ctx context.Context, workspaceID, dialect, question string, res *models.Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("Failed to encode result for cache", zap.Error(err))
		return
	}
	if err := c.redis.client.Set(ctx, CacheKey(workspaceID, dialect, question), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Result cache store failed", zap.Error(err))
	}
}
