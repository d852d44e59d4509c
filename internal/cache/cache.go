// Package cache is the cross-session fetch cache. Pages are stored in Redis
// under a hash of their normalized URL with a TTL, so re-running a session
// against the same bank does not re-crawl pages that were fetched recently.
// A missing or unreachable Redis degrades to cache misses, never to errors.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// PageCache remembers fetched pages. Implementations must treat their own
// failures as misses.
type PageCache interface {
	Get(ctx context.Context, url string) (*webfetch.Page, bool)
	Put(ctx context.Context, url string, page *webfetch.Page)
	Close() error
}

// Config configures the Redis-backed cache.
type Config struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// RedisCache implements PageCache on go-redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(cfg Config) *RedisCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisCache{rdb: rdb, ttl: cfg.TTL}
}

// Ping verifies connectivity, used by health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns the cached page for url, or a miss. Errors other than a plain
// miss are logged and reported as misses.
func (c *RedisCache) Get(ctx context.Context, url string) (*webfetch.Page, bool) {
	raw, err := c.rdb.Get(ctx, Key(url)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		zap.L().Warn("fetch cache read failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	var page webfetch.Page
	if err := json.Unmarshal(raw, &page); err != nil {
		zap.L().Warn("fetch cache entry corrupt", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	return &page, true
}

// Put stores the page best-effort.
func (c *RedisCache) Put(ctx context.Context, url string, page *webfetch.Page) {
	raw, err := json.Marshal(page)
	if err != nil {
		zap.L().Warn("fetch cache encode failed", zap.String("url", url), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, Key(url), raw, c.ttl).Err(); err != nil {
		zap.L().Warn("fetch cache write failed", zap.String("url", url), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Key is the storage key for a URL: a hash of its normalized form, so case
// and trailing-slash variants share one entry.
func Key(url string) string {
	sum := md5.Sum([]byte(webfetch.NormalizeURL(url)))
	return "fetch:" + hex.EncodeToString(sum[:])
}

// Noop is the cache used when Redis is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) (*webfetch.Page, bool)  { return nil, false }
func (Noop) Put(context.Context, string, *webfetch.Page)         {}
func (Noop) Close() error                                        { return nil }
