package main

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	YouTubeAPIKey    string
	YouTubeVideosURL string
	CacheTTL         time.Duration
	ShutdownTimeout  time.Duration
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:             getenv("PORT", "3008"),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		RedisURL:         getenv("REDIS_URL", "redis://redis:6379"),
		YouTubeAPIKey:    getenv("YOUTUBE_API_KEY", ""),
		YouTubeVideosURL: getenv("YOUTUBE_VIDEOS_URL", "https://www.googleapis.com/youtube/v3/videos"),
		CacheTTL:         getenvDuration("CACHE_TTL", time.Hour),
		ShutdownTimeout:  getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("catalog: DATABASE_URL is required")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
