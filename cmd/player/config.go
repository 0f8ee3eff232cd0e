package main

import (
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	RelayURL      string
	CatalogURL    string
	SessionID     string
	SessionToken  string
	SignatureHash string
	Origin        string
	LogLevel      zerolog.Level
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		RelayURL:      getenv("RELAY_URL", "ws://localhost:3004/ws"),
		CatalogURL:    getenv("CATALOG_URL", "http://localhost:3008"),
		SessionID:     getenv("SESSION_ID", ""),
		SessionToken:  getenv("SESSION_TOKEN", ""),
		SignatureHash: getenv("SIGNATURE_HASH", ""),
		Origin:        getenv("ORIGIN", ""),
	}

	if cfg.SessionID == "" {
		return Config{}, errors.New("player: SESSION_ID is required")
	}
	if cfg.SignatureHash == "" {
		cfg.SignatureHash = uuid.NewString()
	}

	lvl, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, errors.New("player: invalid LOG_LEVEL")
	}
	cfg.LogLevel = lvl

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
