package artifact

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache holds verified artifact payloads by path. Entries are dropped all at
// once, never one by one.
type Cache interface {
	Get(ctx context.Context, path string) ([]byte, bool)
	Put(ctx context.Context, path string, body []byte)
	Purge(ctx context.Context) error
}

type memoryCache struct {
	entries *lru.Cache[string, []byte]
}

// NewMemoryCache keeps up to size payloads in process.
func NewMemoryCache(size int) (Cache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &memoryCache{entries: c}, nil
}

func (c *memoryCache) Get(_ context.Context, path string) ([]byte, bool) {
	return c.entries.Get(path)
}

func (c *memoryCache) Put(_ context.Context, path string, body []byte) {
	c.entries.Add(path, body)
}

func (c *memoryCache) Purge(context.Context) error {
	c.entries.Purge()
	return nil
}

const redisPrefix = "m365prov:artifact:"

type redisCache struct {
	rdb    *redis.Client
	branch string
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedisCache shares payloads between consoles. Keys carry the branch so
// the default and test channels never mix.
func NewRedisCache(rdb *redis.Client, branch string, ttl time.Duration, log *zap.SugaredLogger) Cache {
	return &redisCache{rdb: rdb, branch: branch, ttl: ttl, log: log}
}

func redisKey(branch, path string) string { return redisPrefix + branch + ":" + path }

func (c *redisCache) Get(ctx context.Context, path string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, redisKey(c.branch, path)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("redis cache get", "path", path, "err", err)
		}
		return nil, false
	}
	return b, true
}

func (c *redisCache) Put(ctx context.Context, path string, body []byte) {
	if err := c.rdb.Set(ctx, redisKey(c.branch, path), body, c.ttl).Err(); err != nil {
		c.log.Warnw("redis cache put", "path", path, "err", err)
	}
}

func (c *redisCache) Purge(ctx context.Context) error {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, redisPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
