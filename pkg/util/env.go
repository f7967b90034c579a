package util

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv reads .env.<env> (falling back to .env) into the process environment.
// Variables already set in the environment win over the file.
func LoadEnv(env string) error {
	for _, name := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(name); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("no env file found for %q", env)
}

// GetEnv returns the raw value of key, or "".
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvOr returns the value of key, or def when unset or empty.
func GetEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv parses key as an integer; unparsable or missing values yield 0.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetIntEnvOr is GetIntEnv with a default for missing or non-positive values.
func GetIntEnvOr(key string, def int64) int64 {
	if v := GetIntEnv(key); v > 0 {
		return v
	}
	return def
}

// GetBoolEnv parses key as a bool ("1", "true", "TRUE", ...).
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// GetFloatEnvOr parses key as a float64 with a default for missing or non-positive values.
func GetFloatEnvOr(key string, def float64) float64 {
	if v := cast.ToFloat64(os.Getenv(key)); v > 0 {
		return v
	}
	return def
}

// GetDurationEnvOr accepts Go durations ("30s") and bare integers taken as seconds.
func GetDurationEnvOr(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if n, err := cast.ToInt64E(raw); err == nil {
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}
