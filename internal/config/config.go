package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port          string
	Storage       string
	DatabaseURL   string
	MaxBatchBytes int64
	// Commit engine
	DefaultCommitMode string
	// Worker
	WorkerPoll      time.Duration
	WorkerBatchSize int
	// Redis (idempotency)
	IdempotencyBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", "8080"),
		Storage:            strings.ToLower(getEnv("STORAGE", "pg")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MaxBatchBytes:      int64(atoiDef(getEnv("MAX_BATCH_BYTES", "1048576"), 1<<20)),
		DefaultCommitMode:  strings.ToLower(getEnv("DEFAULT_COMMIT_MODE", "atomic")),
		WorkerPoll:         time.Duration(atoiDef(getEnv("WORKER_POLL_MS", "250"), 250)) * time.Millisecond,
		WorkerBatchSize:    atoiDef(getEnv("WORKER_BATCH_LIMIT", "10"), 10),
		IdempotencyBackend: strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", "noop")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:           time.Duration(atoiDef(getEnv("IDEMPOTENCY_TTL_MS", "86400000"), 86400000)) * time.Millisecond,
	}
}
