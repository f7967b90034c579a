package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
	// go-cache 没有原子的比较删除，用锁串行化
	casMu sync.Mutex
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	defaultExpiration := config.DefaultExpiration
	if defaultExpiration <= 0 {
		defaultExpiration = 5 * time.Minute
	}
	cleanupInterval := config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	return &goCacheWrapper{
		cache: gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get 获取缓存值
func (gc *goCacheWrapper) Get(ctx context.Context, key string) (interface{}, bool) {
	return gc.cache.Get(key)
}

// Lookup 本地缓存不会出错
func (gc *goCacheWrapper) Lookup(ctx context.Context, key string) (interface{}, bool, error) {
	value, found := gc.cache.Get(key)
	return value, found, nil
}

// Set 设置缓存值
func (gc *goCacheWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.casMu.Lock()
	gc.cache.Set(key, value, expiration)
	gc.casMu.Unlock()
	return nil
}

// Delete 删除缓存
func (gc *goCacheWrapper) Delete(ctx context.Context, key string) error {
	gc.casMu.Lock()
	gc.cache.Delete(key)
	gc.casMu.Unlock()
	return nil
}

// Exists 检查键是否存在
func (gc *goCacheWrapper) Exists(ctx context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

// CompareAndDelete 比较并删除
func (gc *goCacheWrapper) CompareAndDelete(ctx context.Context, key string, expected interface{}) (bool, error) {
	gc.casMu.Lock()
	defer gc.casMu.Unlock()

	current, found := gc.cache.Get(key)
	if !found || current != expected {
		return false, nil
	}
	gc.cache.Delete(key)
	return true, nil
}

// Close go-cache不需要关闭连接
func (gc *goCacheWrapper) Close() error {
	return nil
}
