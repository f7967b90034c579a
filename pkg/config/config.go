package config

import (
	"log"
	"os"
	"time"

	"Guardian/pkg/logger"
	"Guardian/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`
	Log       logger.LogConfig
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	GRPCAddr  string `env:"GRPC_ADDR"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpire time.Duration `env:"JWT_EXPIRE_HOURS"`

	AlertRadiusKm         float64       `env:"ALERT_RADIUS_KM"`
	AlertCacheSize        int           `env:"ALERT_CACHE_SIZE"`
	LocationFreshness     time.Duration `env:"LOCATION_FRESHNESS_SECONDS"`
	LocationRetention     time.Duration `env:"LOCATION_RETENTION_HOURS"`
	LocationPruneSchedule string        `env:"LOCATION_PRUNE_SCHEDULE"`

	OTPValidity time.Duration `env:"OTP_VALIDITY_SECONDS"`
	OTPRate     string        `env:"OTP_RATE"`

	CacheType     string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
}

var GlobalConfig *Config

// Defaults mirror the service's documented behavior: 5 km alert radius,
// 5 minute location freshness and OTP validity.
const (
	DefaultAddr              = ":8080"
	DefaultAPIPrefix         = "/api"
	DefaultAlertRadiusKm     = 5.0
	DefaultAlertCacheSize    = 1024
	DefaultLocationFreshness = 5 * time.Minute
	DefaultLocationRetention = 24 * time.Hour
	DefaultPruneSchedule     = "@every 10m"
	DefaultOTPValidity       = 5 * time.Minute
	DefaultOTPRate           = "5-M"
	DefaultJWTExpire         = 24 * time.Hour
)

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = &Config{
		DBDriver:  util.GetEnv("DB_DRIVER"),
		DSN:       util.GetEnv("DSN"),
		Addr:      util.GetEnvOr("ADDR", DefaultAddr),
		Mode:      util.GetEnvOr("MODE", "release"),
		APIPrefix: util.GetEnvOr("API_PREFIX", DefaultAPIPrefix),
		GRPCAddr:  util.GetEnv("GRPC_ADDR"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		JWTSecret: util.GetEnv("JWT_SECRET"),
		JWTExpire: time.Duration(util.GetIntEnvOr("JWT_EXPIRE_HOURS", int64(DefaultJWTExpire/time.Hour))) * time.Hour,

		AlertRadiusKm:         util.GetFloatEnvOr("ALERT_RADIUS_KM", DefaultAlertRadiusKm),
		AlertCacheSize:        int(util.GetIntEnvOr("ALERT_CACHE_SIZE", DefaultAlertCacheSize)),
		LocationFreshness:     util.GetDurationEnvOr("LOCATION_FRESHNESS_SECONDS", DefaultLocationFreshness),
		LocationRetention:     time.Duration(util.GetIntEnvOr("LOCATION_RETENTION_HOURS", int64(DefaultLocationRetention/time.Hour))) * time.Hour,
		LocationPruneSchedule: util.GetEnvOr("LOCATION_PRUNE_SCHEDULE", DefaultPruneSchedule),

		OTPValidity: util.GetDurationEnvOr("OTP_VALIDITY_SECONDS", DefaultOTPValidity),
		OTPRate:     util.GetEnvOr("OTP_RATE", DefaultOTPRate),

		CacheType:     util.GetEnvOr("CACHE_TYPE", "gocache"),
		RedisAddr:     util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: util.GetEnv("REDIS_PASSWORD"),
		RedisDB:       int(util.GetIntEnv("REDIS_DB")),
	}
	return nil
}
