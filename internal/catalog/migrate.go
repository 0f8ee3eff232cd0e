package catalog

import (
	"context"
	"fmt"
)

func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS tracks (
          id                TEXT PRIMARY KEY,
          title             TEXT NOT NULL,
          artist            TEXT NOT NULL DEFAULT '',
          provider          TEXT NOT NULL DEFAULT '',
          provider_track_id TEXT NOT NULL DEFAULT '',
          thumbnail_url     TEXT NOT NULL DEFAULT '',
          duration_ms       INT NOT NULL DEFAULT 0,
          created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}

	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_tracks_provider
      ON tracks(provider, provider_track_id)
    `); err != nil {
		return fmt.Errorf("migrate tracks index: %w", err)
	}

	return nil
}
