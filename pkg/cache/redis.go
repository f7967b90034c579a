package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript 原子地比较并删除
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisCache Redis缓存实现
type redisCache struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisCache 创建Redis缓存
func NewRedisCache(config RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache{
		client: client,
		config: config,
	}, nil
}

func (rc *redisCache) key(k string) string {
	return rc.config.KeyPrefix + k
}

// Get 获取缓存值，值以JSON存储
func (rc *redisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	value, found, err := rc.Lookup(ctx, key)
	if err != nil {
		return nil, false
	}
	return value, found
}

// Lookup redis.Nil 表示不存在，其余错误原样返回
func (rc *redisCache) Lookup(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := rc.client.Get(ctx, rc.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decode(raw), true, nil
}

// Set 设置缓存值
func (rc *redisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if expiration < 0 {
		expiration = 0
	}
	return rc.client.Set(ctx, rc.key(key), data, expiration).Err()
}

// Delete 删除缓存
func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

// Exists 检查键是否存在
func (rc *redisCache) Exists(ctx context.Context, key string) bool {
	return rc.client.Exists(ctx, rc.key(key)).Val() > 0
}

// CompareAndDelete 通过Lua脚本保证跨实例原子性
func (rc *redisCache) CompareAndDelete(ctx context.Context, key string, expected interface{}) (bool, error) {
	data, err := json.Marshal(expected)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	n, err := compareAndDeleteScript.Run(ctx, rc.client, []string{rc.key(key)}, string(data)).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 关闭缓存连接
func (rc *redisCache) Close() error {
	return rc.client.Close()
}

func decode(raw string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		// 非JSON内容直接返回字符串
		return raw
	}
	return value
}
