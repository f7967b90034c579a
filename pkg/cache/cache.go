package cache

import (
	"context"
	"time"
)

// Cache 缓存接口，值以 string/数字等可 JSON 编码的标量为主
type Cache interface {
	// Get 获取缓存值，后端故障时视为不存在
	Get(ctx context.Context, key string) (interface{}, bool)

	// Lookup 获取缓存值，区分不存在与后端故障
	Lookup(ctx context.Context, key string) (interface{}, bool, error)

	// Set 设置缓存值，expiration<=0 使用默认过期时间
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) bool

	// CompareAndDelete 仅当当前值等于 expected 时删除，返回是否删除
	CompareAndDelete(ctx context.Context, key string, expected interface{}) (bool, error)

	// Close 关闭缓存连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "gocache" 或 "redis"
	Type string `json:"type" env:"CACHE_TYPE" default:"gocache"`

	Redis RedisConfig `json:"redis"`
	Local LocalConfig `json:"local"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `json:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password     string        `json:"password" env:"REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REDIS_DB" default:"0"`
	PoolSize     int           `json:"pool_size" env:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `json:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `json:"write_timeout" env:"REDIS_WRITE_TIMEOUT" default:"3s"`
	// 键前缀，多个服务共用一个库时区分命名空间
	KeyPrefix string `json:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	// 默认过期时间
	DefaultExpiration time.Duration `json:"default_expiration" default:"5m"`

	// 清理间隔，过期项由 janitor 定期回收
	CleanupInterval time.Duration `json:"cleanup_interval" default:"1m"`
}
