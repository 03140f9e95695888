package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	MongoURI  string
	MongoDB   string
	RedisAddr string
	HTTPPort  string
	// How long an unanswered attention check may sit before the sweeper
	// times the participant out.
	AttentionGracePeriod time.Duration
}

func Load() *Config {
	return &Config{
		MongoURI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:              getEnv("MONGO_DB", "deliberate_lab"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		AttentionGracePeriod: getEnvDuration("ATTENTION_GRACE_SECONDS", 300),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}
