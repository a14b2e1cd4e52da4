package translate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "translate:"

// Cache は翻訳結果の保存先です。見つからない場合は ok=false を返します。
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// defaultMemoryCacheEntries は MemoryCache が保持する件数の上限です。
const defaultMemoryCacheEntries = 4096

// MemoryCache はプロセス内のキャッシュです。件数が上限に達すると期限切れを掃除し、
// それでも空かなければ最も早く期限が来るものを捨てます。
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache は MemoryCache を作成します。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: defaultMemoryCacheEntries,
		now:        time.Now,
	}
}

// Len は保持している件数を返します。
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = entry
	return nil
}

// evictLocked は期限切れを削除し、まだ上限なら期限が最も近い1件を削除します。
func (c *MemoryCache) evictLocked(now time.Time) {
	var (
		victim    string
		victimExp time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		// 期限なしのエントリは最後に捨てる
		if !found || (!e.expiresAt.IsZero() && (victimExp.IsZero() || e.expiresAt.Before(victimExp))) {
			victim, victimExp, found = k, e.expiresAt, true
		}
	}
	if len(c.entries) >= c.maxEntries && found {
		delete(c.entries, victim)
	}
}

// RedisCache は Redis を使うキャッシュです。
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache は RedisCache を作成します。
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, cacheKeyPrefix+key, value, ttl).Err()
}

// Cached は成功した翻訳結果をキャッシュする Translator です。
// キャッシュの読み書き失敗はログに残すだけで、翻訳自体は続行します。
type Cached struct {
	next     Translator
	cache    Cache
	ttl      time.Duration
	provider string
	logger   *log.Logger
}

// NewCached は Cached を作成します。provider はキーの衝突を避けるために使います。
func NewCached(next Translator, cache Cache, ttl time.Duration, provider string, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		provider: provider,
		logger:   logger,
	}
}

func (c *Cached) Translate(ctx context.Context, text, from, to string) (string, error) {
	key := cacheKey(c.provider, from, to, text)
	if value, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Printf("translate cache get failed: %v", err)
	} else if ok {
		return value, nil
	}

	value, err := c.next.Translate(ctx, text, from, to)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Printf("translate cache set failed: %v", err)
	}
	return value, nil
}

func cacheKey(provider, from, to, text string) string {
	sum := md5.Sum([]byte(provider + "\x00" + from + "\x00" + to + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
