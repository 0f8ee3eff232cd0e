package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// Repository persists track payloads in Postgres.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// GetTracks returns the stored tracks among ids, in no particular order.
func (r *Repository) GetTracks(ctx context.Context, ids []string) ([]playlist.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
      SELECT id, title, artist, provider, provider_track_id, thumbnail_url, duration_ms
      FROM tracks
      WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	out := make([]playlist.Track, 0, len(ids))
	for rows.Next() {
		var t playlist.Track
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.Provider, &t.ProviderTrackID, &t.ThumbnailURL, &t.DurationMs); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return out, nil
}

// UpsertTracks inserts tracks, overwriting the stored payload of known ids.
// Either every track is written or none is.
func (r *Repository) UpsertTracks(ctx context.Context, tracks []playlist.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range tracks {
		_, err := tx.Exec(ctx, `
          INSERT INTO tracks (id, title, artist, provider, provider_track_id, thumbnail_url, duration_ms)
          VALUES ($1, $2, $3, $4, $5, $6, $7)
          ON CONFLICT (id) DO UPDATE SET
              title = EXCLUDED.title,
              artist = EXCLUDED.artist,
              provider = EXCLUDED.provider,
              provider_track_id = EXCLUDED.provider_track_id,
              thumbnail_url = EXCLUDED.thumbnail_url,
              duration_ms = EXCLUDED.duration_ms,
              updated_at = now()
        `, t.ID, t.Title, t.Artist, t.Provider, t.ProviderTrackID, t.ThumbnailURL, t.DurationMs)
		if err != nil {
			return fmt.Errorf("upsert track %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}
