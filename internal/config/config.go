package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	NatsURL          string
	NatsToken        string
	LogLevel         string
	GeminiAPIKey     string
	OpenRouterAPIKey string
	APIToken         string
	CohortFile       string
	CachePath        string
}

func Load() Config {
	return Config{
		Port:             envInt("QUORUM_PORT", 8700),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		OpenRouterAPIKey: envStr("OPENROUTER_API_KEY", ""),
		APIToken:         envStr("QUORUM_API_TOKEN", ""),
		CohortFile:       envStr("QUORUM_COHORT_FILE", ""),
		CachePath:        envStr("QUORUM_CACHE_PATH", "quorum-cache.db"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
