package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/envutil"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// ResultCache memoizes extraction results per content hash so re-ingesting the
// same fragment skips the extractor round-trip. Best-effort: every failure is
// logged and treated as a miss.
type ResultCache interface {
	GetExtraction(ctx context.Context, key string) (*types.ExtractionResult, bool)
	SetExtraction(ctx context.Context, key string, res *types.ExtractionResult)
	Ping(ctx context.Context) error
	Close() error
}

type resultCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewResultCache builds the cache from REDIS_ADDR. Returns (nil, nil) when no
// address is configured; the pipeline simply recomputes in that case.
func NewResultCache(log *logger.Logger) (ResultCache, error) {
	if log == nil {
		return nil, fmt.Errorf("redis: logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &resultCache{
		log: log.With("client", "RedisResultCache"),
		rdb: rdb,
		ttl: envutil.DurationSeconds("EXTRACTION_CACHE_TTL_SECONDS", 30*time.Minute),
	}, nil
}

func cacheKey(key string) string { return "extract:" + key }

func (c *resultCache) GetExtraction(ctx context.Context, key string) (*types.ExtractionResult, bool) {
	if c == nil || c.rdb == nil || key == "" {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("cache read failed", "error", err)
		}
		return nil, false
	}
	var res types.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		c.log.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		_ = c.rdb.Del(ctx, cacheKey(key)).Err()
		return nil, false
	}
	res.FromCache = true
	return &res, true
}

func (c *resultCache) SetExtraction(ctx context.Context, key string, res *types.ExtractionResult) {
	if c == nil || c.rdb == nil || key == "" || res == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		c.log.Warn("cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(key), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "error", err)
	}
}

func (c *resultCache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis not configured")
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *resultCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
