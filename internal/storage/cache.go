package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsurehub/finsurehub/internal/logx"
)

const (
	listCacheTTL = 5 * time.Minute
	genKey       = "posts:gen"
	listKeyGlob  = "posts:list:*"
)

// NewRedisClient addr 为空时返回 nil（不启用缓存）；连不上只告警，缓存读写失败时自动回源
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logx.Warnf("redis ping failed: %v", err)
	}
	return rdb
}

// Cached 给 Store 加一层 Redis 列表缓存。
// 缓存 key 带上代数 posts:gen，任何写操作都 INCR 代数，旧 key 依赖 TTL 自然过期；INCR 失败时才主动删除。
type Cached struct {
	Store
	rdb *redis.Client
}

// WithCache rdb 为 nil 时直接返回原 Store
func WithCache(s Store, rdb *redis.Client) Store {
	if rdb == nil {
		return s
	}
	return &Cached{Store: s, rdb: rdb}
}

func (c *Cached) generation(ctx context.Context) int64 {
	n, err := c.rdb.Get(ctx, genKey).Int64()
	if err != nil {
		return 0
	}
	return n
}

// bump 失败时代数没变，必须把列表 key 全删掉，否则旧列表会一直命中到 TTL
func (c *Cached) bump(ctx context.Context) {
	if err := c.rdb.Incr(ctx, genKey).Err(); err != nil {
		logx.Warnf("redis incr %s failed: %v", genKey, err)
		c.purgeLists(ctx)
	}
}

func (c *Cached) purgeLists(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, listKeyGlob, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			logx.Warnf("redis del %s failed: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		logx.Errorf("redis purge %s failed, list cache may be stale: %v", listKeyGlob, err)
	}
}

// Uncached 去掉缓存层，给需要强一致读的调用方（如采集去重）使用
func Uncached(s Store) Store {
	if c, ok := s.(*Cached); ok {
		return c.Store
	}
	return s
}

func (c *Cached) List(ctx context.Context, f Filter) ([]Post, error) {
	cacheKey := fmt.Sprintf("posts:list:%d:%s:%s", c.generation(ctx), f.Status, f.Category)

	if bs, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var cached []Post
		if err := json.Unmarshal(bs, &cached); err == nil {
			return cached, nil
		}
	}

	list, err := c.Store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if bs, err := json.Marshal(list); err == nil {
		_ = c.rdb.Set(ctx, cacheKey, bs, listCacheTTL).Err()
	}
	return list, nil
}

func (c *Cached) Create(ctx context.Context, p *Post) error {
	if err := c.Store.Create(ctx, p); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *Cached) Update(ctx context.Context, p Post) error {
	if err := c.Store.Update(ctx, p); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *Cached) Delete(ctx context.Context, id string) error {
	if err := c.Store.Delete(ctx, id); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *Cached) InsertMany(ctx context.Context, posts []Post) error {
	if err := c.Store.InsertMany(ctx, posts); err != nil {
		return err
	}
	if len(posts) > 0 {
		c.bump(ctx)
	}
	return nil
}

func (c *Cached) Close() error {
	err := c.Store.Close()
	if cerr := c.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
