package main

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	RedisURL        string
	FrontendBaseURL string
	JWTSecret       []byte
	SessionTTL      time.Duration
	ShutdownTimeout time.Duration
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:            getenv("PORT", "3004"),
		RedisURL:        getenv("REDIS_URL", "redis://redis:6379"),
		FrontendBaseURL: getenv("FRONTEND_BASE_URL", ""),
		JWTSecret:       []byte(getenv("JWT_SECRET", "")),
		SessionTTL:      getenvDuration("SESSION_TTL", 24*time.Hour),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, errors.New("relay: PORT must be a number")
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
